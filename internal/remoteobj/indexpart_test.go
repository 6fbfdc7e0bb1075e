package remoteobj

import "testing"

func TestIndexPart_EncodeDecode_RoundTrip(t *testing.T) {
	p := &IndexPart{
		Layers: []LayerFileInfo{
			{FileID: "image-0001", Size: 4096},
			{FileID: "delta-0002", Size: 2048},
		},
		Metadata: []byte("fake metadata bytes"),
		Deleted:  false,
	}

	buf, err := EncodeIndexPart(p)
	if err != nil {
		t.Fatalf("EncodeIndexPart failed: %v", err)
	}

	got, err := DecodeIndexPart(buf)
	if err != nil {
		t.Fatalf("DecodeIndexPart failed: %v", err)
	}
	if len(got.Layers) != 2 || got.Layers[0].FileID != "image-0001" || got.Layers[1].Size != 2048 {
		t.Fatalf("Layers = %+v, want round-tripped entries", got.Layers)
	}
	if string(got.Metadata) != string(p.Metadata) {
		t.Fatalf("Metadata = %q, want %q", got.Metadata, p.Metadata)
	}
	if got.Deleted != p.Deleted {
		t.Fatalf("Deleted = %v, want %v", got.Deleted, p.Deleted)
	}
}

func TestIndexPart_EncodeDecode_EmptyLayers(t *testing.T) {
	p := &IndexPart{}

	buf, err := EncodeIndexPart(p)
	if err != nil {
		t.Fatalf("EncodeIndexPart failed: %v", err)
	}
	got, err := DecodeIndexPart(buf)
	if err != nil {
		t.Fatalf("DecodeIndexPart failed: %v", err)
	}
	if len(got.Layers) != 0 {
		t.Fatalf("Layers = %+v, want empty", got.Layers)
	}
}
