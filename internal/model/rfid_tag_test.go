package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagState_SetStateKeepsStatusAndItemTogether(t *testing.T) {
	var tag RfidTag

	tag.SetState(EnrolledState("item-1"))
	assert.Equal(t, TagStatusEnrolled, tag.Status)
	if assert.NotNil(t, tag.InventoryItemID) {
		assert.Equal(t, "item-1", *tag.InventoryItemID)
	}

	tag.SetState(UnassignedState())
	assert.Equal(t, TagStatusUnassigned, tag.Status)
	assert.Nil(t, tag.InventoryItemID)

	tag.SetState(UnknownState())
	assert.Equal(t, TagStatusUnknown, tag.Status)
	assert.Nil(t, tag.InventoryItemID)
}

func TestTagState_ReadFromRow(t *testing.T) {
	item := "item-9"
	empty := ""

	testCases := []struct {
		name         string
		tag          RfidTag
		wantStatus   TagStatus
		wantEnrolled bool
	}{
		{"enrolled with item", RfidTag{Status: TagStatusEnrolled, InventoryItemID: &item}, TagStatusEnrolled, true},
		{"enrolled without item", RfidTag{Status: TagStatusEnrolled}, TagStatusUnassigned, false},
		{"enrolled with empty item", RfidTag{Status: TagStatusEnrolled, InventoryItemID: &empty}, TagStatusUnassigned, false},
		{"unassigned", RfidTag{Status: TagStatusUnassigned}, TagStatusUnassigned, false},
		{"blank status", RfidTag{}, TagStatusUnknown, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.tag.State()
			assert.Equal(t, tc.wantStatus, s.Status())
			assert.Equal(t, tc.wantEnrolled, s.Enrolled())
			id, ok := s.InventoryItemID()
			assert.Equal(t, tc.wantEnrolled, ok)
			if ok {
				assert.Equal(t, item, id)
			}
		})
	}
}

func TestEnrolledState_RequiresItem(t *testing.T) {
	assert.Panics(t, func() { EnrolledState("") })
	assert.Equal(t, TagStatusUnknown, TagState{}.Status())
}

func TestParseTagStatus(t *testing.T) {
	s, ok := ParseTagStatus("ENROLLED")
	assert.True(t, ok)
	assert.Equal(t, TagStatusEnrolled, s)

	_, ok = ParseTagStatus("enrolled")
	assert.False(t, ok)
}

func TestPushSubscription_Wants(t *testing.T) {
	all := PushSubscription{}
	assert.True(t, all.Wants(AlertUnknownTag))

	only := PushSubscription{Kinds: []AlertKind{AlertRfidMovement}}
	assert.True(t, only.Wants(AlertRfidMovement))
	assert.False(t, only.Wants(AlertUnknownTag))
}
