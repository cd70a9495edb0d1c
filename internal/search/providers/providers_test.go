package providers_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"peoplefinder/internal/search/domain"
	"peoplefinder/internal/search/providers"
	"peoplefinder/internal/search/providers/mocks"
)

func TestRegistry(t *testing.T) {
	ctrl := gomock.NewController(t)
	graph := mocks.NewMockBackend(ctrl)
	graph.EXPECT().Name().Return(providers.Graph).AnyTimes()
	directory := mocks.NewMockBackend(ctrl)
	directory.EXPECT().Name().Return(providers.Directory).AnyTimes()

	reg := providers.NewRegistry()
	require.NoError(t, reg.Register(graph))
	require.NoError(t, reg.Register(directory))

	t.Run("keeps registration order", func(t *testing.T) {
		assert.Equal(t, []string{providers.Graph, providers.Directory}, reg.Names())
		assert.Equal(t, 2, reg.Len())
		assert.Same(t, directory, reg.All()[1])
	})

	t.Run("rejects duplicate names", func(t *testing.T) {
		err := reg.Register(graph)
		assert.ErrorIs(t, err, providers.ErrBackendRegistered)
	})

	t.Run("lookup by name", func(t *testing.T) {
		b, ok := reg.Get(providers.Directory)
		require.True(t, ok)
		assert.Equal(t, providers.Directory, b.Name())

		_, ok = reg.Get(providers.Profile)
		assert.False(t, ok)
	})
}

func TestClassify(t *testing.T) {
	three := []domain.Record{{domain.FieldID: "1"}, {domain.FieldID: "2"}, {domain.FieldID: "3"}}

	tests := []struct {
		name     string
		records  []domain.Record
		limit    int
		wantKind domain.OutcomeKind
		wantErr  bool
	}{
		{name: "none", records: nil, limit: 2, wantKind: domain.OutcomeAbsent},
		{name: "one", records: three[:1], limit: 2, wantKind: domain.OutcomeFound},
		{name: "at cap", records: three[:2], limit: 2, wantKind: domain.OutcomeCandidates},
		{name: "over cap", records: three, limit: 2, wantErr: true},
		{name: "no cap", records: three, limit: 0, wantKind: domain.OutcomeCandidates},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := providers.Classify(providers.Directory, tt.records, tt.limit)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, providers.ErrorTooManyResults, providers.GetCategory(err))
				assert.Contains(t, err.Error(), "more than 2 matches")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, out.Kind())
		})
	}
}

func TestProviderErrors(t *testing.T) {
	root := errors.New("connection refused")
	err := fmt.Errorf("search: %w", providers.NewProviderError(providers.ErrorTokenAcquisition, providers.Graph, "token endpoint", root))

	assert.Equal(t, providers.ErrorTokenAcquisition, providers.GetCategory(err))
	assert.True(t, providers.GetCategory(err).IsBackendFailure())
	assert.True(t, providers.IsRetryable(err))
	assert.ErrorIs(t, err, root)
	assert.Equal(t, "search: graph [token_acquisition_failed]: token endpoint: connection refused", err.Error())

	assert.Equal(t, providers.ErrorBackend, providers.GetCategory(root))
	assert.False(t, providers.IsTimeout(root))
	assert.True(t, providers.IsTimeout(providers.NewProviderError(providers.ErrorTimeout, "x", "slow", nil)))
	assert.False(t, providers.ErrorTooManyResults.IsBackendFailure())
	assert.False(t, providers.IsRetryable(providers.TooManyResults(providers.Profile, 5)))
}
