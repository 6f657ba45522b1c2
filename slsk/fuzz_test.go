package slsk

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	fuzz "github.com/google/gofuzz"
)

// FuzzSharesReplyRoundtrip feeds arbitrary byte input through a bounded
// random Directory/File/Attribute generator and checks that encoding then
// decoding a SharesReply reproduces the same tree, catching length-prefix
// or nesting bugs a hand-picked fixture wouldn't exercise.
func FuzzSharesReplyRoundtrip(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0, 1, 2, 3, 4, 5, 6, 7})
	f.Add([]byte{255, 255, 255, 255, 0, 0, 0, 0, 9, 9})

	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzer := fuzz.NewFromGoFuzz(data)
		reply := SharesReply{Directories: randDirectories(fuzzer)}

		buf := NewBuffer()
		buf.Fill(reply.Encode())
		frame, n, err := Decode(FamilyP2P, buf)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n != len(reply.Encode()) {
			t.Fatalf("consumed %d bytes, want %d", n, len(reply.Encode()))
		}
		got := SharesReply{Directories: frame.Peer.SharesReply.Directories}
		if diff := cmp.Diff(reply, got, cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("SharesReply roundtrip mismatch (-want +got):\n%s", diff)
		}
	})
}

func randUpTo(fuzzer *fuzz.Fuzzer, max int) int {
	var i int
	fuzzer.Fuzz(&i)
	if max <= 0 {
		return 0
	}
	if i < 0 {
		i = -i
	}
	return i % max
}

var randNameAlphabet = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_")

func randName(fuzzer *fuzz.Fuzzer) string {
	n := 1 + randUpTo(fuzzer, 12)
	out := make([]rune, n)
	for i := range out {
		out[i] = randNameAlphabet[randUpTo(fuzzer, len(randNameAlphabet))]
	}
	return string(out)
}

func randAttributes(fuzzer *fuzz.Fuzzer) []Attribute {
	n := randUpTo(fuzzer, 4)
	if n == 0 {
		return nil
	}
	attrs := make([]Attribute, n)
	for i := range attrs {
		var place, value uint32
		fuzzer.Fuzz(&place)
		fuzzer.Fuzz(&value)
		attrs[i] = Attribute{Place: place, Attribute: value}
	}
	return attrs
}

func randFiles(fuzzer *fuzz.Fuzzer) []File {
	n := randUpTo(fuzzer, 4)
	if n == 0 {
		return nil
	}
	files := make([]File, n)
	for i := range files {
		var size uint64
		fuzzer.Fuzz(&size)
		files[i] = File{
			Name:       randName(fuzzer),
			Size:       size,
			Extension:  randName(fuzzer),
			Attributes: randAttributes(fuzzer),
		}
	}
	return files
}

func randDirectories(fuzzer *fuzz.Fuzzer) []Directory {
	n := randUpTo(fuzzer, 5)
	if n == 0 {
		return nil
	}
	dirs := make([]Directory, n)
	for i := range dirs {
		dirs[i] = Directory{Name: randName(fuzzer), Files: randFiles(fuzzer)}
	}
	return dirs
}
