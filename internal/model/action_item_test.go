package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionItemTransfer_RoundTrip(t *testing.T) {
	item := NewActionItem("Pay rent", "finance")

	back := FromTransfer(ToTransfer(item))
	require.NotNil(t, back)
	assert.Equal(t, *item, *back)
}

func TestActionItemTransfer_RoundTripThroughJSON(t *testing.T) {
	item := NewActionItem("Renew passport", "admin")

	data, err := json.Marshal(ToTransfer(item))
	require.NoError(t, err)
	assert.JSONEq(t, `{"description":"Renew passport","category":"admin"}`, string(data))

	var transfer ActionItemTransfer
	require.NoError(t, json.Unmarshal(data, &transfer))
	assert.Equal(t, *item, *FromTransfer(&transfer))
}

func TestActionItemTransfer_Nil(t *testing.T) {
	assert.Nil(t, ToTransfer(nil))
	assert.Nil(t, FromTransfer(nil))
	assert.Nil(t, FromTransfer(ToTransfer(nil)))
}

func TestNewActionItem_Normalizes(t *testing.T) {
	// "e" followed by a combining acute accent composes to U+00E9 under NFC.
	item := NewActionItem("  Café run \n", " errands ")
	assert.Equal(t, "Café run", item.Description)
	assert.Equal(t, "errands", item.Category)
}

func TestActionItem_Eligible(t *testing.T) {
	var nilItem *ActionItem
	assert.False(t, nilItem.Eligible())
	assert.False(t, (&ActionItem{Description: "   "}).Eligible())
	assert.False(t, (&ActionItem{Description: "", Category: "finance"}).Eligible())
	assert.True(t, (&ActionItem{Description: "Pay rent"}).Eligible())
}
