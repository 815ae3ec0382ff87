package demo

import (
	"testing"

	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func encodeFrame(cmd Command, tick int32, payload []byte) []byte {
	var b []byte
	b = protowire.AppendVarint(b, uint64(cmd))
	b = protowire.AppendVarint(b, uint64(uint32(tick)))
	b = protowire.AppendVarint(b, uint64(len(payload)))
	return append(b, payload...)
}

func TestReadFrame(t *testing.T) {
	payload := []byte("hello frame payload")
	compressed := snappy.Encode(nil, payload)

	type args struct {
		data []byte
	}
	tests := []struct {
		name        string
		args        args
		wantCmd     Command
		wantTick    int32
		wantPayload []byte
		wantSize    int
		wantErr     error
	}{
		{
			name:        "plain",
			args:        args{encodeFrame(CmdPacket, 12, payload)},
			wantCmd:     CmdPacket,
			wantTick:    12,
			wantPayload: payload,
			wantSize:    3 + len(payload),
		},
		{
			name:        "compressed",
			args:        args{encodeFrame(CmdPacket|cmdCompressed, 12, compressed)},
			wantCmd:     CmdPacket,
			wantTick:    12,
			wantPayload: payload,
			wantSize:    3 + len(compressed),
		},
		{
			name:        "header tick",
			args:        args{append(encodeFrame(CmdFileHeader, -1, nil), 0xaa)},
			wantCmd:     CmdFileHeader,
			wantTick:    -1,
			wantPayload: []byte{},
			wantSize:    7,
		},
		{
			name:    "payload past end",
			args:    args{encodeFrame(CmdPacket, 1, payload)[:10]},
			wantErr: ErrTruncated,
		},
		{
			name:    "varint past end",
			args:    args{[]byte{0x07, 0x80}},
			wantErr: ErrTruncated,
		},
		{
			name:    "bad snappy",
			args:    args{encodeFrame(CmdPacket|cmdCompressed, 1, []byte{0xff, 0xff, 0xff})},
			wantErr: ErrDecompress,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, n, err := readFrame(tt.args.data)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCmd, f.cmd)
			assert.Equal(t, tt.wantTick, f.tick)
			assert.Equal(t, tt.wantPayload, f.payload)
			assert.Equal(t, tt.wantSize, n)
		})
	}
}
