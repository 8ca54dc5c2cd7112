package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/factory-erp/internal/app"
	_ "github.com/odyssey-erp/factory-erp/testing"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
	require.NotPanics(t, main)
}
