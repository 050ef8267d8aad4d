package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/clientdoc/internal/app"
	_ "github.com/odyssey-erp/clientdoc/testing"
)

func TestWorkerSkipsStartupInTestMode(t *testing.T) {
	assert.True(t, app.InTestMode())
	assert.NotPanics(t, main)
}
