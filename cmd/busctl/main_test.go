package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunRejectsUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run(context.Background(), nil, &out))
	assert.Contains(t, out.String(), "usage: busctl")

	err := run(context.Background(), []string{"frobnicate"}, &out)
	assert.EqualError(t, err, `unknown command "frobnicate"`)
}

func TestCreateAdminValidatesBeforeConnecting(t *testing.T) {
	var out bytes.Buffer
	ctx := context.Background()
	assert.ErrorContains(t, createAdminCmd(ctx, []string{"--password", "longenough"}, &out), "--email")
	assert.ErrorContains(t, createAdminCmd(ctx, []string{"--email", "a@b.co", "--password", "short"}, &out), "8 characters")
	assert.ErrorContains(t, createAdminCmd(ctx, []string{"--email", "a@b.co", "--password", "longenough", "--role", "owner"}, &out), "invalid role")
}

func TestMaintenanceNeedsAction(t *testing.T) {
	assert.Error(t, maintenanceCmd(context.Background(), nil, &bytes.Buffer{}))
}
