package ttr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noc-kit/faultdesk/internal/domain"
)

func TestClassifyAtClosure(t *testing.T) {
	assert.Equal(t, domain.ComplianceComply, ClassifyAtClosure(4, 3.5))
	assert.Equal(t, domain.ComplianceNotComply, ClassifyAtClosure(4, 5))

	// Exactly on target counts as compliant.
	assert.Equal(t, domain.ComplianceComply, ClassifyAtClosure(4, 4))
}

func TestComplianceWireValues(t *testing.T) {
	assert.Equal(t, "COMPLY", string(domain.ComplianceComply))
	assert.Equal(t, "NOT COMPLY", string(domain.ComplianceNotComply))
}
