package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topper-enrich/internal/config"
	"github.com/sells-group/topper-enrich/internal/model"
)

func TestUpdatePlan_OrderedByField(t *testing.T) {
	now := time.Now()
	plan, err := Update{
		Set: map[string]any{
			model.FieldLastTriedAt: now,
			model.FieldEnriched:    true,
			model.FieldBio:         "bio",
		},
		Unset: []string{model.FieldEnrichedError},
	}.plan()
	require.NoError(t, err)

	cols := make([]string, len(plan))
	for i, a := range plan {
		cols[i] = a.column
	}
	assert.Equal(t, []string{"enriched", "bio", "enriched_error", "last_tried_at"}, cols)
	assert.Nil(t, plan[2].value)
}

func TestUpdatePlan_Errors(t *testing.T) {
	tests := []struct {
		name string
		u    Update
		want string
	}{
		{"empty", Update{}, "empty update"},
		{"unknown set", Update{Set: map[string]any{"about": "x"}}, `unknown field "about"`},
		{"unknown unset", Update{Unset: []string{"rank"}}, `unknown field "rank"`},
		{"both", Update{Set: map[string]any{model.FieldBio: "x"}, Unset: []string{model.FieldBio}}, "both set and unset"},
		{"wrong type", Update{Set: map[string]any{model.FieldEnriched: "yes"}}, "unsupported type"},
		{"insights type", Update{Set: map[string]any{model.FieldInsights: "a,b"}}, "unsupported type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.u.plan()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDecodeInsights(t *testing.T) {
	got, err := decodeInsights(`["a","b"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = decodeInsights("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = decodeInsights("{")
	assert.Error(t, err)
}

func TestEncodeInsights_NilIsEmptyArray(t *testing.T) {
	b, err := encodeInsights(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
