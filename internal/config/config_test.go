package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openospf/ospfd"
)

func TestMarshalLoadRoundTrip(t *testing.T) {
	c := Config{
		RouterID: ospf2.ID{10, 0, 0, 1},
		Areas: []Area{
			{ID: ospf2.ID{0, 0, 0, 0}, Stub: false},
		},
		LSDBLimit: 10000,
	}

	data, err := Marshal(c)
	require.NoError(t, err)

	got, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, c.RouterID, got.RouterID)
	assert.Equal(t, c.LSDBLimit, got.LSDBLimit)
	require.Len(t, got.Areas, 1)
	assert.Equal(t, c.Areas[0].ID, got.Areas[0].ID)
}

func TestTransactionCommitAppliesStagedOps(t *testing.T) {
	base := Config{RouterID: ospf2.ID{1, 1, 1, 1}}

	tx := Begin(base)
	tx.Add(Op{
		Kind:  AddArea,
		Field: "Areas",
		Apply: func(c *Config) error {
			c.Areas = append(c.Areas, Area{ID: ospf2.ID{0, 0, 0, 1}})
			return nil
		},
	})
	tx.Add(Op{
		Kind:  SetGlobalParams,
		Field: "LSDBLimit",
		Apply: func(c *Config) error {
			c.LSDBLimit = 5000
			return nil
		},
	})

	committed, diff, err := tx.Commit()
	require.NoError(t, err)
	require.Len(t, committed.Areas, 1)
	assert.Equal(t, 5000, committed.LSDBLimit)
	assert.True(t, diff.Changed("Areas"))
	assert.True(t, diff.Changed("LSDBLimit"))
	assert.False(t, diff.Changed("Interfaces"))

	// the base passed to Begin must be untouched by the committed transaction.
	assert.Empty(t, base.Areas)
}

func TestTransactionCommitFailureLeavesBaseUnchanged(t *testing.T) {
	base := Config{RouterID: ospf2.ID{1, 1, 1, 1}, LSDBLimit: 100}

	tx := Begin(base)
	tx.Add(Op{
		Kind:  SetGlobalParams,
		Field: "LSDBLimit",
		Apply: func(c *Config) error {
			c.LSDBLimit = 999
			return nil
		},
	})
	tx.Add(Op{
		Kind:  AddArea,
		Field: "Areas",
		Apply: func(c *Config) error {
			return errors.New("boom")
		},
	})

	got, _, err := tx.Commit()
	require.Error(t, err)
	assert.Equal(t, base, got, "a failed commit must return the original configuration unchanged")
}

func TestTransactionAbortDropsStagedOps(t *testing.T) {
	base := Config{RouterID: ospf2.ID{1, 1, 1, 1}}
	tx := Begin(base)
	tx.Add(Op{Field: "Areas", Apply: func(c *Config) error {
		c.Areas = append(c.Areas, Area{})
		return nil
	}})

	tx.Abort()

	committed, _, err := tx.Commit()
	require.NoError(t, err)
	assert.Empty(t, committed.Areas)
}

func TestCloneConfigDeepCopiesSlices(t *testing.T) {
	base := Config{Areas: []Area{{ID: ospf2.ID{0, 0, 0, 0}}}}
	tx := Begin(base)

	tx.Add(Op{Field: "Areas", Apply: func(c *Config) error {
		c.Areas[0].Stub = true
		return nil
	}})

	_, _, err := tx.Commit()
	require.NoError(t, err)
	assert.False(t, base.Areas[0].Stub, "mutating the working copy must not reach back into the original slice backing array")
}
