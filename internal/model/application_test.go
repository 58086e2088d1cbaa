package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseApplicationStatus(t *testing.T) {
	testCases := []struct {
		raw       string
		expected  ApplicationStatus
		expectErr bool
	}{
		{raw: "pending", expected: StatusPending},
		{raw: "APPROVED", expected: StatusApproved},
		{raw: "  rejected ", expected: StatusRejected},
		{raw: "allocated", expected: StatusAllocated},
		{raw: "", expectErr: true},
		{raw: "cancelled", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseApplicationStatus(tc.raw)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestApplication_IsAllocatedTo(t *testing.T) {
	roomID := int64(7)
	app := Application{Status: StatusAllocated, AllocatedRoomID: &roomID}
	assert.True(t, app.IsAllocatedTo(7))
	assert.False(t, app.IsAllocatedTo(8))

	app.Release(StatusApproved)
	assert.False(t, app.IsAllocatedTo(7))
	assert.Nil(t, app.AllocatedRoomID)
	assert.Equal(t, StatusApproved, app.Status)
}

func TestApplicationStatus_IsActive(t *testing.T) {
	assert.True(t, StatusPending.IsActive())
	assert.True(t, StatusApproved.IsActive())
	assert.True(t, StatusAllocated.IsActive())
	assert.False(t, StatusRejected.IsActive())
}
