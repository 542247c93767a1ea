package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpay/rpay-insights/internal/app"
	_ "github.com/rpay/rpay-insights/testing"
)

func TestWorkerSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
