package dcc

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		body string
		want Kind
	}{
		{body: "\x01DCC SEND movie.mkv 3221226002 5000 1048576\x01", want: KindSend},
		{body: "\x01DCC ACCEPT movie.mkv 5000 500000\x01", want: KindAccept},
		{body: "** You have been queued for pack #1", want: KindOther},
		{body: "\x01VERSION\x01", want: KindOther},
		{body: "SEND without the DCC keyword", want: KindOther},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.body), tt.body)
	}
}

func TestParseOffer(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    *Offer
		wantErr error
	}{
		{
			name: "dotted address",
			body: "\x01DCC SEND movie.mkv 192.0.2.10 5000 1048576\x01",
			want: &Offer{FileName: "movie.mkv", Addr: net.ParseIP("192.0.2.10"), Port: 5000, Size: 1048576},
		},
		{
			name: "decimal address",
			body: "\x01DCC SEND movie.mkv 3221225994 5000 1048576\x01",
			want: &Offer{FileName: "movie.mkv", Addr: net.IPv4(192, 0, 2, 10), Port: 5000, Size: 1048576},
		},
		{
			name: "quoted name with spaces",
			body: "\x01DCC SEND \"my movie.mkv\" 192.0.2.10 5000 42\x01",
			want: &Offer{FileName: "my movie.mkv", Addr: net.ParseIP("192.0.2.10"), Port: 5000, Size: 42},
		},
		{
			name: "ipv6 literal",
			body: "\x01DCC SEND a.bin 2001:db8::1 5000 42\x01",
			want: &Offer{FileName: "a.bin", Addr: net.ParseIP("2001:db8::1"), Port: 5000, Size: 42},
		},
		{
			name: "larger than 4GiB",
			body: "\x01DCC SEND big.iso 192.0.2.10 5000 8589934592\x01",
			want: &Offer{FileName: "big.iso", Addr: net.ParseIP("192.0.2.10"), Port: 5000, Size: 8589934592},
		},
		{name: "missing size", body: "\x01DCC SEND movie.mkv 192.0.2.10 5000\x01", wantErr: ErrMalformed},
		{name: "bad address", body: "\x01DCC SEND movie.mkv not-an-ip 5000 10\x01", wantErr: ErrMalformed},
		{name: "bad port", body: "\x01DCC SEND movie.mkv 192.0.2.10 99999 10\x01", wantErr: ErrMalformed},
		{name: "bad size", body: "\x01DCC SEND movie.mkv 192.0.2.10 5000 -1\x01", wantErr: ErrMalformed},
		{name: "unterminated quote", body: "\x01DCC SEND \"movie.mkv 192.0.2.10 5000 10\x01", wantErr: ErrMalformed},
		{name: "passive", body: "\x01DCC SEND movie.mkv 192.0.2.10 0 10 77\x01", wantErr: ErrPassiveUnsupported},
		{name: "no marker", body: "\x01DCC CHAT chat 192.0.2.10 5000\x01", wantErr: ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseOffer(tt.body)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.FileName, got.FileName)
			assert.True(t, tt.want.Addr.Equal(got.Addr), "addr %v != %v", got.Addr, tt.want.Addr)
			assert.Equal(t, tt.want.Port, got.Port)
			assert.Equal(t, tt.want.Size, got.Size)
		})
	}
}

func TestParseAccept(t *testing.T) {
	got, err := ParseAccept("\x01DCC ACCEPT movie.mkv 5000 500000\x01")
	require.NoError(t, err)
	assert.Equal(t, &Accept{FileName: "movie.mkv", Port: 5000, Offset: 500000}, got)

	got, err = ParseAccept("\x01DCC ACCEPT \"my movie.mkv\" 5000 7\x01")
	require.NoError(t, err)
	assert.Equal(t, "my movie.mkv", got.FileName)
	assert.Equal(t, uint64(7), got.Offset)

	_, err = ParseAccept("\x01DCC ACCEPT movie.mkv 5000\x01")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseAccept("\x01DCC ACCEPT movie.mkv 5000 lots\x01")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCTCP(t *testing.T) {
	assert.Equal(t, "\x01DCC RESUME a 1 2\x01", CTCP("DCC RESUME a 1 2"))
}
