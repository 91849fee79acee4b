package resolver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/docsync/internal/models"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Strategy
		wantErr  bool
	}{
		{name: "last write wins", input: "last-write-wins", expected: StrategyLastWriteWins},
		{name: "server wins", input: "server-wins", expected: StrategyServerWins},
		{name: "client wins", input: "client-wins", expected: StrategyClientWins},
		{name: "unknown", input: "merge-fields", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy, err := ParseStrategy(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, strategy)
			assert.Equal(t, tt.input, strategy.String())
		})
	}
}

func TestResolve_LastWriteWins(t *testing.T) {
	now := time.Now()
	local := &models.Document{ID: "d1", Rev: "2-aaa", UpdatedAt: now.Add(time.Second), Fields: map[string]any{"v": "local"}}
	remote := &models.Document{ID: "d1", Rev: "2-bbb", UpdatedAt: now, Fields: map[string]any{"v": "remote"}}

	decision := Resolve("d1", local, remote, StrategyLastWriteWins, now)

	assert.Equal(t, WinnerLocal, decision.Winner)
	assert.Equal(t, "local", decision.Document.Fields["v"])
}

func TestResolve_LastWriteWins_TieFavorsRemote(t *testing.T) {
	now := time.Now()
	local := &models.Document{ID: "d1", Rev: "2-aaa", UpdatedAt: now, Fields: map[string]any{"v": "local"}}
	remote := &models.Document{ID: "d1", Rev: "2-bbb", UpdatedAt: now, Fields: map[string]any{"v": "remote"}}

	decision := Resolve("d1", local, remote, StrategyLastWriteWins, now)

	assert.Equal(t, WinnerRemote, decision.Winner)
	assert.Equal(t, "remote", decision.Document.Fields["v"])
}

func TestResolve_ServerWins(t *testing.T) {
	now := time.Now()
	// Локальная версия новее, но стратегия всегда выбирает сервер
	local := &models.Document{ID: "d1", UpdatedAt: now.Add(time.Hour), Fields: map[string]any{"v": "local"}}
	remote := &models.Document{ID: "d1", UpdatedAt: now, Fields: map[string]any{"v": "remote"}}

	decision := Resolve("d1", local, remote, StrategyServerWins, now)

	assert.Equal(t, WinnerRemote, decision.Winner)
	assert.Equal(t, "remote", decision.Document.Fields["v"])
}

func TestResolve_ClientWins(t *testing.T) {
	now := time.Now()
	local := &models.Document{ID: "d1", UpdatedAt: now.Add(-time.Hour), Fields: map[string]any{"v": "local"}}
	remote := &models.Document{ID: "d1", UpdatedAt: now, Fields: map[string]any{"v": "remote"}}

	decision := Resolve("d1", local, remote, StrategyClientWins, now)

	assert.Equal(t, WinnerLocal, decision.Winner)
	assert.Equal(t, "local", decision.Document.Fields["v"])
}

func TestResolve_NoRemote(t *testing.T) {
	now := time.Now()
	local := &models.Document{ID: "d1", Fields: map[string]any{"v": "local"}}

	decision := Resolve("d1", local, nil, StrategyServerWins, now)

	assert.Equal(t, WinnerLocal, decision.Winner)
	assert.Equal(t, "local", decision.Document.Fields["v"])
}

func TestResolve_Deterministic(t *testing.T) {
	now := time.Now()
	local := &models.Document{ID: "d1", Rev: "2-aaa", UpdatedAt: now, Fields: map[string]any{"v": "local"}}
	remote := &models.Document{ID: "d1", Rev: "2-bbb", UpdatedAt: now, Fields: map[string]any{"v": "remote"}}

	for _, strategy := range []Strategy{StrategyLastWriteWins, StrategyServerWins, StrategyClientWins} {
		first := Resolve("d1", local, remote, strategy, now)
		second := Resolve("d1", local, remote, strategy, now)

		assert.Equal(t, first.Winner, second.Winner, "strategy %s", strategy)
		assert.Equal(t, first.Document, second.Document, "strategy %s", strategy)
	}
}

func TestResolve_ReturnsClone(t *testing.T) {
	now := time.Now()
	local := &models.Document{ID: "d1", UpdatedAt: now.Add(time.Second), Fields: map[string]any{"v": "local"}}
	remote := &models.Document{ID: "d1", UpdatedAt: now, Fields: map[string]any{"v": "remote"}}

	decision := Resolve("d1", local, remote, StrategyLastWriteWins, now)
	decision.Document.Fields["v"] = "mutated"

	assert.Equal(t, "local", local.Fields["v"])
}

func TestInConflict(t *testing.T) {
	tests := []struct {
		name          string
		incoming      *models.Document
		authoritative *models.Document
		expected      bool
	}{
		{
			name:          "no authoritative document",
			incoming:      &models.Document{ID: "d1", Rev: "1-aaa"},
			authoritative: nil,
			expected:      false,
		},
		{
			name:          "same revision",
			incoming:      &models.Document{ID: "d1", Rev: "2-aaa"},
			authoritative: &models.Document{ID: "d1", Rev: "2-aaa"},
			expected:      false,
		},
		{
			name:          "builds on current generation",
			incoming:      &models.Document{ID: "d1", Rev: "3-bbb"},
			authoritative: &models.Document{ID: "d1", Rev: "2-aaa"},
			expected:      false,
		},
		{
			name:          "same generation different suffix",
			incoming:      &models.Document{ID: "d1", Rev: "2-bbb"},
			authoritative: &models.Document{ID: "d1", Rev: "2-aaa"},
			expected:      true,
		},
		{
			name:          "behind authoritative generation",
			incoming:      &models.Document{ID: "d1", Rev: "1-bbb"},
			authoritative: &models.Document{ID: "d1", Rev: "4-aaa"},
			expected:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, InConflict(tt.incoming, tt.authoritative))
		})
	}
}

func TestNewRev(t *testing.T) {
	first := NewRev("")
	assert.Equal(t, int64(1), RevGeneration(first))

	second := NewRev(first)
	assert.Equal(t, int64(2), RevGeneration(second))
	assert.NotEqual(t, first, second)
}

func TestRevGeneration_Malformed(t *testing.T) {
	assert.Equal(t, int64(0), RevGeneration(""))
	assert.Equal(t, int64(0), RevGeneration("not-a-number"))
	assert.Equal(t, int64(0), RevGeneration("42"))
	assert.Equal(t, int64(7), RevGeneration("7-abc"))
}
