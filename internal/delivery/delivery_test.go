package delivery

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMask(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "", want: ""},
		{in: "ABCD", want: "****"},
		{in: "ABCDE", want: "AB*DE"},
		{in: "ABCDEFGHJKLMNP", want: "AB**********NP"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Mask(tt.in))
		})
	}
}

func TestOutbox_SendCodes(t *testing.T) {
	o := NewOutbox(0)
	err := o.SendCodes(context.Background(),
		Recipient{Channel: ChannelEmail, Address: "a@b.c"},
		"ORD-2025-00001",
		[]ProductCodes{{Description: "Regular Renewal", Codes: []string{"ABCDEFGHJKLMNP"}}},
	)
	require.NoError(t, err)

	recs := o.Recent()
	require.Len(t, recs, 1)
	assert.Equal(t, "ORD-2025-00001", recs[0].Reference)
	assert.Equal(t, []string{"AB**********NP"}, recs[0].Products[0].Codes)
}

func TestOutbox_BlankAddress(t *testing.T) {
	o := NewOutbox(0)
	err := o.SendCodes(context.Background(), Recipient{Channel: ChannelSMS, Address: "  "}, "R", nil)
	require.ErrorIs(t, err, ErrNoAddress)
	assert.Empty(t, o.Recent())
}

func TestOutbox_Capped(t *testing.T) {
	o := NewOutbox(3)
	for i := range 5 {
		require.NoError(t, o.SendCodes(context.Background(),
			Recipient{Channel: ChannelSMS, Address: "020"}, fmt.Sprintf("R%d", i), nil))
	}

	recs := o.Recent()
	require.Len(t, recs, 3)
	assert.Equal(t, "R4", recs[0].Reference)
	assert.Equal(t, "R2", recs[2].Reference)
}
