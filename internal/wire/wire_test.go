package wire

import (
	"bytes"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	payload := []byte{0x02, 0x00, 0x05, 0x00}
	raw := EncodeRequest(3, 0x04, 0x10, payload)

	wantRaw := []byte{0x06, MakeCmdByte(3, 0x04), 0x10, 0x02, 0x00, 0x05, 0x00}
	if !bytes.Equal(raw, wantRaw) {
		t.Fatalf("raw = % X, want % X", raw, wantRaw)
	}

	tag, cmd, subcmd, got, err := DecodeRequest(raw)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if tag != 3 || cmd != 0x04 || subcmd != 0x10 {
		t.Fatalf("got tag=%d cmd=%#x subcmd=%#x", tag, cmd, subcmd)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = % X, want % X", got, payload)
	}
}

func TestRequestRoundTripEmptyPayload(t *testing.T) {
	raw := EncodeRequest(0, 0x04, 0x10, nil)
	_, _, _, got, err := DecodeRequest(raw)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("payload = % X, want empty", got)
	}
}

func TestFirmwareVersionResponse(t *testing.T) {
	// Literal bytes from the firmware-version handshake scenario.
	raw := []byte{MakeCmdByte(2, 0x04), 0x06, 0x10, 0x00, 0x02, 0x00, 0x05, 0x00}
	tag, cmd, subcmd, status, payload, err := DecodeResponse(raw)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if tag != 2 || cmd != 0x04 || subcmd != 0x10 || status != 0x00 {
		t.Fatalf("got tag=%d cmd=%#x subcmd=%#x status=%#x", tag, cmd, subcmd, status)
	}
	want := []byte{0x02, 0x00, 0x05, 0x00}
	if !bytes.Equal(payload, want) {
		t.Fatalf("payload = % X, want % X", payload, want)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC}
	raw := EncodeResponse(5, 0x09, 0x02, 0x00, payload)
	tag, cmd, subcmd, status, got, err := DecodeResponse(raw)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if tag != 5 || cmd != 0x09 || subcmd != 0x02 || status != 0x00 {
		t.Fatalf("got tag=%d cmd=%#x subcmd=%#x status=%#x", tag, cmd, subcmd, status)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = % X, want % X", got, payload)
	}
}

func TestKeyboardEventFixed2(t *testing.T) {
	raw := []byte{0x85, 0x1C}
	evType, status, payload, err := DecodeEvent(raw)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	if evType != 0x05 || status != 0x00 {
		t.Fatalf("evType=%#x status=%#x", evType, status)
	}
	if !bytes.Equal(payload, []byte{0x1C}) {
		t.Fatalf("payload = % X, want [1C]", payload)
	}
}

func TestEventLengthClassesRoundTrip(t *testing.T) {
	cases := []struct {
		name        string
		lengthClass byte
		evType      byte
		errFlag     bool
		status      byte
		payload     []byte
	}{
		{"fixed2", EventFixed2, 0x05, false, 0x00, []byte{0x1C}},
		{"fixed3", EventFixed3, 0x03, false, 0x00, []byte{0x01, 0x02}},
		{"variable-no-error", EventVariable, 0x06, false, 0x00, []byte{0xAA, 0xBB, 0xCC}},
		{"variable-error", EventVariable, 0x06, true, 0x07, []byte{0xBB, 0xCC}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw := EncodeEvent(c.lengthClass, c.evType, c.errFlag, c.status, c.payload)
			evType, status, payload, err := DecodeEvent(raw)
			if err != nil {
				t.Fatalf("DecodeEvent: %v", err)
			}
			if evType != c.evType {
				t.Fatalf("evType = %#x, want %#x", evType, c.evType)
			}
			if status != c.status {
				t.Fatalf("status = %#x, want %#x", status, c.status)
			}
			if !bytes.Equal(payload, c.payload) {
				t.Fatalf("payload = % X, want % X", payload, c.payload)
			}
		})
	}
}

func TestDecodeEventReservedClass(t *testing.T) {
	raw := []byte{PacketEvent | EventReserved | 0x01}
	if _, _, _, err := DecodeEvent(raw); err != ErrReservedLengthClass {
		t.Fatalf("err = %v, want ErrReservedLengthClass", err)
	}
}

func TestDecodeRequestTruncated(t *testing.T) {
	if _, _, _, _, err := DecodeRequest([]byte{0x01}); err != ErrTruncated {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}
