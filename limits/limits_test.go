package limits

import (
	"errors"
	"testing"
)

func TestValidateMessageSize(t *testing.T) {
	tests := []struct {
		name      string
		message   []byte
		maxSize   int
		wantErr   error
		checkWrap bool
	}{
		{
			name:    "empty message",
			message: []byte{},
			maxSize: 100,
			wantErr: ErrMessageEmpty,
		},
		{
			name:    "nil message",
			message: nil,
			maxSize: 100,
			wantErr: ErrMessageEmpty,
		},
		{
			name:    "valid message within limit",
			message: make([]byte, 50),
			maxSize: 100,
			wantErr: nil,
		},
		{
			name:    "message at exact limit",
			message: make([]byte, 100),
			maxSize: 100,
			wantErr: nil,
		},
		{
			name:      "message exceeds limit",
			message:   make([]byte, 101),
			maxSize:   100,
			wantErr:   ErrMessageTooLarge,
			checkWrap: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageSize(tt.message, tt.maxSize)
			if tt.checkWrap {
				if err == nil || !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateMessageSize() error = %v, should wrap %v", err, tt.wantErr)
				}
			} else if err != tt.wantErr {
				t.Errorf("ValidateMessageSize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConstantConsistency(t *testing.T) {
	if WriteBufferSize <= ChunkSize {
		t.Errorf("WriteBufferSize (%d) should be > ChunkSize (%d)", WriteBufferSize, ChunkSize)
	}
	if RateWindowSpan <= RateUpdateInterval {
		t.Errorf("RateWindowSpan (%v) should be > RateUpdateInterval (%v)", RateWindowSpan, RateUpdateInterval)
	}
	if RateUpdateInterval <= ProgressUpdateInterval {
		t.Errorf("RateUpdateInterval (%v) should be > ProgressUpdateInterval (%v)", RateUpdateInterval, ProgressUpdateInterval)
	}
	if WireMagic == WireVersion {
		t.Errorf("WireMagic and WireVersion must be distinguishable constants")
	}
}
