package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudienceResolutionError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("run job: %w", &AudienceResolutionError{TargetGroupID: "tg-1", Err: cause})

	var are *AudienceResolutionError
	require.True(t, errors.As(err, &are))
	assert.Equal(t, "tg-1", are.TargetGroupID)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "resolve audience tg-1")
}

func TestConfigurationError_Message(t *testing.T) {
	err := &ConfigurationError{Subject: "target group vip", Reason: "missing contact column"}
	assert.Equal(t, "configuration error in target group vip: missing contact column", err.Error())
}

func TestWorkflowPlan_TargetMapping(t *testing.T) {
	plan := &WorkflowPlan{TargetMappings: []TargetTemplateMapping{
		{ID: "m1", TargetGroupID: "tg-1", TemplateID: "t-1"},
		{ID: "m2", TargetGroupID: "tg-2", TemplateID: "t-1"},
	}}
	m := plan.TargetMapping("tg-2", "t-1")
	require.NotNil(t, m)
	assert.Equal(t, "m2", m.ID)
	assert.Nil(t, plan.TargetMapping("tg-3", "t-1"))
}
