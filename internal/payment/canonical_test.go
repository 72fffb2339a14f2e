package payment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name      string
		in        Notification
		want      Event
		wantErr   error
		wantParse string
	}{
		{
			name: "crypto paid by track id",
			in:   Notification{Provider: ProviderCrypto, RawStatus: "paid", Reference: "trk_1", ReferenceKind: KeyExternalID},
			want: Event{OrderKey: "trk_1", KeyKind: KeyExternalID, NewStatus: StatusPaid, Provider: ProviderCrypto, RawStatus: "paid"},
		},
		{
			name: "crypto confirmed maps to paid, case insensitive",
			in:   Notification{Provider: ProviderCrypto, RawStatus: "Confirmed", Reference: "trk_1", ReferenceKind: KeyExternalID},
			want: Event{OrderKey: "trk_1", KeyKind: KeyExternalID, NewStatus: StatusPaid, Provider: ProviderCrypto, RawStatus: "confirmed"},
		},
		{
			name: "crypto expired",
			in:   Notification{Provider: ProviderCrypto, RawStatus: "expired", Reference: "trk_1", ReferenceKind: KeyExternalID},
			want: Event{OrderKey: "trk_1", KeyKind: KeyExternalID, NewStatus: StatusExpired, Provider: ProviderCrypto, RawStatus: "expired"},
		},
		{
			name:    "crypto intermediate status is ignored",
			in:      Notification{Provider: ProviderCrypto, RawStatus: "paying", Reference: "trk_1", ReferenceKind: KeyExternalID},
			wantErr: ErrIgnored,
		},
		{
			name:      "crypto missing track id",
			in:        Notification{Provider: ProviderCrypto, RawStatus: "paid", ReferenceKind: KeyExternalID, ReferenceField: "trackId"},
			wantParse: "trackId",
		},
		{
			name:      "missing status",
			in:        Notification{Provider: ProviderCrypto, Reference: "trk_1", ReferenceKind: KeyExternalID},
			wantParse: "status",
		},
		{
			name: "card checkout completed",
			in:   Notification{Provider: ProviderCard, RawStatus: "checkout.session.completed", Reference: "order_1", ReferenceKind: KeyOrderID},
			want: Event{OrderKey: "order_1", KeyKind: KeyOrderID, NewStatus: StatusPaid, Provider: ProviderCard, RawStatus: "checkout.session.completed"},
		},
		{
			name:    "card other event type without metadata is ignored, not malformed",
			in:      Notification{Provider: ProviderCard, RawStatus: "payment_intent.created", ReferenceKind: KeyOrderID},
			wantErr: ErrIgnored,
		},
		{
			name:      "card completed without order id",
			in:        Notification{Provider: ProviderCard, RawStatus: "checkout.session.completed", ReferenceKind: KeyOrderID, ReferenceField: "metadata.order_id"},
			wantParse: "metadata.order_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.in)

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantParse != "":
				var parseErr *ParseError
				require.True(t, errors.As(err, &parseErr), "expected ParseError, got %v", err)
				require.Equal(t, tt.wantParse, parseErr.Field)
			default:
				require.NoError(t, err)
				require.Equal(t, tt.want, got)
			}
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	require.False(t, StatusUnpaid.Terminal())
	for _, s := range TerminalStatuses {
		require.True(t, s.Terminal(), s)
		require.True(t, s.Valid(), s)
	}
	require.False(t, Status("pending").Valid())
}
