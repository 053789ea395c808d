package tool

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, params map[string]interface{}, ec *ExecutionContext) (*Result, error) {
	return OK(nil), nil
}

func testDefinition(id string, t Type) *Definition {
	return &Definition{
		ID:        id,
		Name:      id,
		Type:      t,
		Functions: map[string]*Function{"run": {Execute: noop}},
	}
}

func TestRegistry_RegisterAndReplace(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Register(testDefinition("a", TypeCustom)))
	require.NoError(t, r.Register(testDefinition("b", TypeContactForm)))

	replacement := testDefinition("a", TypeCustom)
	replacement.Name = "A v2"
	require.NoError(t, r.Register(replacement))

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "A v2", got.Name)

	all := r.GetAll()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_GetAllByTypeAndRemove(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(testDefinition("cal", TypeCalendarBooking)))
	require.NoError(t, r.Register(testDefinition("lead", TypeContactForm)))
	require.NoError(t, r.Register(testDefinition("cal2", TypeCalendarBooking)))

	cals := r.GetAllByType(TypeCalendarBooking)
	require.Len(t, cals, 2)
	assert.Equal(t, "cal", cals[0].ID)
	assert.Equal(t, "cal2", cals[1].ID)
	assert.Empty(t, r.GetAllByType(TypePaymentProcessing))

	assert.True(t, r.Remove("cal"))
	assert.False(t, r.Remove("cal"))
	_, ok := r.Get("cal")
	assert.False(t, ok)
	assert.Len(t, r.GetAll(), 2)
}

func TestRegistry_RejectsMalformed(t *testing.T) {
	r := NewRegistry(nil)

	tests := []struct {
		name string
		def  *Definition
		want error
	}{
		{"nil", nil, ErrEmptyToolID},
		{"empty id", &Definition{Functions: map[string]*Function{"run": {Execute: noop}}}, ErrEmptyToolID},
		{"no functions", &Definition{ID: "x"}, ErrNoFunctions},
		{"nil body", &Definition{ID: "x", Functions: map[string]*Function{"run": {}}}, ErrFunctionNoHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, r.Register(tt.def), tt.want)
		})
	}
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Initialized(t *testing.T) {
	r := NewRegistry(nil)
	assert.False(t, r.IsInitialized())
	r.SetInitialized(true)
	assert.True(t, r.IsInitialized())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.Register(testDefinition("shared", TypeCustom))
		}()
		go func() {
			defer wg.Done()
			r.Get("shared")
			r.GetAll()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, r.Len())
}

func TestDefinition_ResolveConfig(t *testing.T) {
	def := testDefinition("x", TypeContactForm)
	assert.Equal(t, map[string]interface{}{}, def.ResolveConfig(nil))

	def.DefaultConfig = map[string]interface{}{"a": 1}
	assert.Equal(t, def.DefaultConfig, def.ResolveConfig(nil))
	assert.Equal(t, def.DefaultConfig, def.ResolveConfig(map[string]interface{}{}))

	bot := map[string]interface{}{"b": 2}
	assert.Equal(t, bot, def.ResolveConfig(bot))

	merged := def.MergeConfig(bot)
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, merged)
}

func TestDecode(t *testing.T) {
	var out struct {
		Duration int      `json:"appointmentDuration"`
		Zone     string   `json:"timeZone"`
		Fields   []string `json:"requiredFields"`
	}
	err := Decode(map[string]interface{}{
		"appointmentDuration": "45",
		"timeZone":            "UTC",
		"requiredFields":      []interface{}{"name", "email"},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, 45, out.Duration)
	assert.Equal(t, "UTC", out.Zone)
	assert.Equal(t, []string{"name", "email"}, out.Fields)
}
