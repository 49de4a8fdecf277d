package services

import (
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "what is a derivative?", NormalizeQuery("  What   is a DERIVATIVE? "))
	assert.Equal(t, "eigenvalues", NormalizeQuery("Eigenvalues"))
	assert.Equal(t, "", NormalizeQuery("   "))
}

func TestTrendTracker_BumpNormalizesKey(t *testing.T) {
	ledger := newFakeLedger()
	tracker := NewTrendTracker(ledger, logrus.New())

	require.NoError(t, tracker.Bump("What is a derivative?"))
	require.NoError(t, tracker.Bump("  what IS a  derivative?  "))

	top, err := tracker.Top(10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "what is a derivative?", top[0].QueryText)
	assert.Equal(t, 2, top[0].Frequency)
}

func TestTrendTracker_ConcurrentBump(t *testing.T) {
	ledger := newFakeLedger()
	tracker := NewTrendTracker(ledger, logrus.New())

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, tracker.Bump("integral of x squared"))
		}()
	}
	wg.Wait()

	top, err := tracker.Top(1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, n, top[0].Frequency, "no bump may be lost under concurrency")
}

func TestTrendTracker_EmptyQueryIgnored(t *testing.T) {
	ledger := newFakeLedger()
	tracker := NewTrendTracker(ledger, logrus.New())

	require.NoError(t, tracker.Bump("   "))

	top, err := tracker.Top(10)
	require.NoError(t, err)
	assert.Empty(t, top)
}
