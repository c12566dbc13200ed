package backupset

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/deploymenttheory/go-mrimg-restore/internal/mrimg"
	"github.com/deploymenttheory/go-mrimg-restore/internal/mrimg/mrimgtest"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/blockio"
	imgerrors "github.com/deploymenttheory/go-mrimg-restore/internal/utils/errors"
)

// chainFile describes one synthetic backup file of a chain
type chainFile struct {
	number int32
	delta  bool
	blocks map[uint32][]byte // for full files keys are 0..n-1
	count  int               // block count of a full file
}

// writeChain writes every file into dir under its recorded Windows name and
// returns the paths in the order given.
func writeChain(t *testing.T, dir string, files []chainFile) []string {
	t.Helper()

	var history []mrimg.FileHistory
	for _, cf := range files {
		history = append(history, mrimg.FileHistory{
			FileName:   fmt.Sprintf(`D:\Backups\img-00-%02d.mrimg`, cf.number),
			FileNumber: cf.number,
		})
	}

	var paths []string
	for i, cf := range files {
		b := mrimgtest.NewBuilder()
		part := mrimgtest.Partition{Number: 1, BlockSize: 4096, History: history[:i+1]}
		if cf.delta {
			for idx, data := range cf.blocks {
				part.Delta = append(part.Delta, mrimg.DeltaDataBlockIndexElement{BlockIndex: idx, DataBlock: b.AddData(data)})
			}
		} else {
			part.Blocks = make([]mrimg.DataBlockIndexElement, cf.count)
			for idx := 0; idx < cf.count; idx++ {
				if data, ok := cf.blocks[uint32(idx)]; ok {
					part.Blocks[idx] = b.AddData(data)
				}
			}
		}

		layout := mrimgtest.SimpleLayout(uint16(cf.number), cf.delta, make([]byte, 512), part)
		path := filepath.Join(dir, fmt.Sprintf("img-00-%02d.mrimg", cf.number))
		if err := b.WriteFile(path, layout); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, path)
	}
	return paths
}

func block(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, 4096)
}

func fiveBlocks() map[uint32][]byte {
	return map[uint32][]byte{0: block('0'), 1: block('1'), 2: block('2'), 3: block('3'), 4: block('4')}
}

func openCurrent(t *testing.T, path string) *mrimg.FileLayout {
	t.Helper()
	layout, err := mrimg.ReadFileLayout(path, mrimg.Options{})
	if err != nil {
		t.Fatalf("ReadFileLayout(%s): %v", path, err)
	}
	return layout
}

func TestRoundTripFullBackup(t *testing.T) {
	paths := writeChain(t, t.TempDir(), []chainFile{{number: 0, count: 5, blocks: fiveBlocks()}})
	current := openCurrent(t, paths[0])

	set, err := Open(NewResolver(current, mrimg.Options{}), current, 0, &current.Disks[0].Partitions[0], Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer set.Close()

	if set.Chain.Depth() != 1 {
		t.Fatalf("chain depth = %d", set.Chain.Depth())
	}
	full := set.Chain.Full().Partition.DataBlockIndex
	if len(set.Map) != len(full) {
		t.Fatalf("map has %d entries; want %d", len(set.Map), len(full))
	}
	for i, ref := range set.Map {
		if ref.File != 0 || ref.Block != full[i] {
			t.Errorf("entry %d = %+v; want file 0 %+v", i, ref, full[i])
		}
	}
}

func TestDeltaOverlay(t *testing.T) {
	paths := writeChain(t, t.TempDir(), []chainFile{
		{number: 0, count: 5, blocks: fiveBlocks()},
		{number: 1, delta: true, blocks: map[uint32][]byte{2: block('B')}},
	})
	current := openCurrent(t, paths[1])

	set, err := Open(NewResolver(current, mrimg.Options{}), current, 0, &current.Disks[0].Partitions[0], Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer set.Close()

	want := []struct {
		file int
		fill byte
	}{{0, '0'}, {0, '1'}, {1, 'B'}, {0, '3'}, {0, '4'}}

	buf := make([]byte, 4096)
	for i, w := range want {
		if set.Map[i].File != w.file {
			t.Errorf("block %d from file %d; want %d", i, set.Map[i].File, w.file)
		}
		if err := set.Read(i, buf); err != nil {
			t.Fatalf("Read(%d): %v", i, err)
		}
		if buf[0] != w.fill || buf[4095] != w.fill {
			t.Errorf("block %d content %q; want %q", i, buf[0], w.fill)
		}
	}
}

func TestLaterIncrementalWins(t *testing.T) {
	paths := writeChain(t, t.TempDir(), []chainFile{
		{number: 0, count: 3, blocks: map[uint32][]byte{0: block('a'), 1: block('b'), 2: block('c')}},
		{number: 1, delta: true, blocks: map[uint32][]byte{1: block('X')}},
		{number: 2, delta: true, blocks: map[uint32][]byte{1: block('Y'), 2: block('Z')}},
	})
	current := openCurrent(t, paths[2])

	set, err := Open(NewResolver(current, mrimg.Options{}), current, 0, &current.Disks[0].Partitions[0], Options{MaxOpenFiles: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer set.Close()

	files := []int{set.Map[0].File, set.Map[1].File, set.Map[2].File}
	if files[0] != 0 || files[1] != 2 || files[2] != 2 {
		t.Errorf("owning files = %v; want [0 2 2]", files)
	}
}

func TestChainDepth(t *testing.T) {
	for depth := 1; depth <= 5; depth++ {
		t.Run(fmt.Sprintf("depth %d", depth), func(t *testing.T) {
			// An older full backup precedes the chain and must not be visited
			files := []chainFile{{number: 0, count: 4, blocks: map[uint32][]byte{0: block('o')}}}
			files = append(files, chainFile{number: 1, count: 4, blocks: map[uint32][]byte{0: block('f')}})
			for n := 2; n <= depth; n++ {
				files = append(files, chainFile{number: int32(n), delta: true, blocks: map[uint32][]byte{uint32(n % 4): block(byte(n))}})
			}
			paths := writeChain(t, t.TempDir(), files)
			current := openCurrent(t, paths[len(paths)-1])

			var loaded []string
			r := &Resolver{
				Loader: LoaderFunc(func(path string) (*mrimg.FileLayout, error) {
					loaded = append(loaded, path)
					return mrimg.ReadFileLayout(path, mrimg.Options{})
				}),
				Locator: NewLocator(current.Path),
			}

			chain, err := r.Resolve(current, 0, &current.Disks[0].Partitions[0])
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if chain.Depth() != depth {
				t.Fatalf("chain depth = %d; want %d", chain.Depth(), depth)
			}
			// The current file is already decoded
			if len(loaded) != depth-1 {
				t.Errorf("loaded %d files; want %d: %v", len(loaded), depth-1, loaded)
			}
			for i, m := range chain.Members {
				if m.FileNumber != int32(i+1) {
					t.Errorf("member %d has file number %d; want %d", i, m.FileNumber, i+1)
				}
				if m.Path != paths[i+1] {
					t.Errorf("member %d path %q; want %q", i, m.Path, paths[i+1])
				}
			}
			if !chain.Full().Layout.IsFull() {
				t.Error("chain base is not a full backup")
			}
		})
	}
}

func TestResolveWithoutFullBackup(t *testing.T) {
	dir := t.TempDir()
	paths := writeChain(t, dir, []chainFile{
		{number: 0, count: 2, blocks: map[uint32][]byte{0: block('a')}},
		{number: 1, delta: true, blocks: map[uint32][]byte{1: block('b')}},
	})
	// Replace the full backup with an incremental under the same name
	writeChainAt(t, paths[0], chainFile{number: 0, delta: true})

	current := openCurrent(t, paths[1])
	_, err := NewResolver(current, mrimg.Options{}).Resolve(current, 0, &current.Disks[0].Partitions[0])
	if !errors.Is(err, imgerrors.ErrChainResolution) {
		t.Fatalf("expected ErrChainResolution, got %v", err)
	}
}

func writeChainAt(t *testing.T, path string, cf chainFile) {
	t.Helper()
	b := mrimgtest.NewBuilder()
	part := mrimgtest.Partition{Number: 1, BlockSize: 4096, History: []mrimg.FileHistory{{FileName: path, FileNumber: cf.number}}}
	layout := mrimgtest.SimpleLayout(uint16(cf.number), cf.delta, make([]byte, 512), part)
	if err := b.WriteFile(path, layout); err != nil {
		t.Fatal(err)
	}
}

func TestResolveMissingHistoryFile(t *testing.T) {
	dir := t.TempDir()
	paths := writeChain(t, dir, []chainFile{
		{number: 0, count: 2, blocks: map[uint32][]byte{0: block('a')}},
		{number: 1, delta: true, blocks: map[uint32][]byte{1: block('b')}},
	})
	if err := os.Remove(paths[0]); err != nil {
		t.Fatal(err)
	}

	current := openCurrent(t, paths[1])
	_, err := NewResolver(current, mrimg.Options{}).Resolve(current, 0, &current.Disks[0].Partitions[0])
	if !imgerrors.IsChainError(err) {
		t.Fatalf("expected chain error, got %v", err)
	}
}

func TestResolveMissingPartition(t *testing.T) {
	current := mrimgtest.SimpleLayout(1, true, nil, mrimgtest.Partition{
		Number:  7,
		History: []mrimg.FileHistory{{FileName: "full.mrimg", FileNumber: 0}, {FileName: "inc.mrimg", FileNumber: 1}},
	})
	current.Path = "inc.mrimg"
	full := mrimgtest.SimpleLayout(0, false, nil, mrimgtest.Partition{Number: 3})

	r := &Resolver{Loader: LoaderFunc(func(string) (*mrimg.FileLayout, error) { return full, nil })}
	_, err := r.Resolve(current, 0, &current.Disks[0].Partitions[0])
	if !errors.Is(err, imgerrors.ErrChainResolution) {
		t.Fatalf("expected ErrChainResolution, got %v", err)
	}
}

func TestResolveIgnoresNewerAndDuplicateEntries(t *testing.T) {
	full := mrimgtest.SimpleLayout(0, false, nil, mrimgtest.Partition{Number: 1, Blocks: make([]mrimg.DataBlockIndexElement, 2)})
	full.Path = "full.mrimg"
	current := mrimgtest.SimpleLayout(1, true, nil, mrimgtest.Partition{
		Number: 1,
		History: []mrimg.FileHistory{
			{FileName: "full.mrimg", FileNumber: 0},
			{FileName: "inc.mrimg", FileNumber: 1},
			{FileName: "inc.mrimg", FileNumber: 1},
			{FileName: "later.mrimg", FileNumber: 2},
		},
	})
	current.Path = "inc.mrimg"

	loads := 0
	r := &Resolver{Loader: LoaderFunc(func(path string) (*mrimg.FileLayout, error) {
		loads++
		if path != "full.mrimg" {
			t.Errorf("unexpected load of %q", path)
		}
		return full, nil
	})}
	chain, err := r.Resolve(current, 0, &current.Disks[0].Partitions[0])
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if chain.Depth() != 2 || loads != 1 {
		t.Errorf("depth %d after %d loads; want 2 after 1", chain.Depth(), loads)
	}
}

func TestBuildBlockMapOutOfRange(t *testing.T) {
	full := mrimgtest.SimpleLayout(0, false, nil, mrimgtest.Partition{Number: 1, Blocks: make([]mrimg.DataBlockIndexElement, 5)})
	inc := mrimgtest.SimpleLayout(1, true, nil, mrimgtest.Partition{
		Number: 1,
		Delta:  []mrimg.DeltaDataBlockIndexElement{{BlockIndex: 5, DataBlock: mrimg.DataBlockIndexElement{FilePosition: 64, BlockLength: 1}}},
	})
	chain := &Chain{Members: []Member{
		{Path: "full", Layout: full, Partition: &full.Disks[0].Partitions[0]},
		{Path: "inc", FileNumber: 1, Layout: inc, Partition: &inc.Disks[0].Partitions[0]},
	}}

	if _, err := BuildBlockMap(chain); !errors.Is(err, imgerrors.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestBuildBlockMapRequiresFullBase(t *testing.T) {
	inc := mrimgtest.SimpleLayout(1, true, nil, mrimgtest.Partition{Number: 1})
	chain := &Chain{Members: []Member{{Path: "inc", Layout: inc, Partition: &inc.Disks[0].Partitions[0]}}}
	if _, err := BuildBlockMap(chain); !errors.Is(err, imgerrors.ErrChainResolution) {
		t.Fatalf("expected ErrChainResolution, got %v", err)
	}
	if _, err := BuildBlockMap(&Chain{}); !errors.Is(err, imgerrors.ErrChainResolution) {
		t.Fatalf("expected ErrChainResolution for empty chain, got %v", err)
	}
}

func TestHandleTableEviction(t *testing.T) {
	files := map[string]*blockio.File{}
	table := NewHandleTable(2, func(path string) (*blockio.File, error) {
		f := blockio.NewReader(path, []byte(path))
		files[path] = f
		return f, nil
	})

	for _, p := range []string{"a", "b", "a", "c", "b"} {
		if _, err := table.Get(p); err != nil {
			t.Fatal(err)
		}
		if table.Len() > 2 {
			t.Fatalf("table holds %d handles", table.Len())
		}
	}
	// a, b opened; a hit; c evicts b; b reopened evicting a
	if table.Opens() != 4 {
		t.Errorf("opens = %d; want 4", table.Opens())
	}
	if err := table.Close(); err != nil {
		t.Fatal(err)
	}
	if table.Len() != 0 {
		t.Errorf("%d handles open after Close", table.Len())
	}
}

func TestHandleTableOpenError(t *testing.T) {
	table := NewHandleTable(0, nil)
	_, err := table.Get(filepath.Join(t.TempDir(), "absent.mrimg"))
	if !imgerrors.IsIOError(err) {
		t.Fatalf("expected I/O error, got %v", err)
	}
	if table.Len() != 0 {
		t.Error("failed open left a handle behind")
	}
}

func TestLocator(t *testing.T) {
	dir := t.TempDir()
	anchor := filepath.Join(dir, "img-00-01.mrimg")
	sibling := filepath.Join(dir, "img-00-00.mrimg")
	for _, p := range []string{anchor, sibling} {
		if err := os.WriteFile(p, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	other := filepath.Join(t.TempDir(), "elsewhere.mrimg")
	if err := os.WriteFile(other, nil, 0644); err != nil {
		t.Fatal(err)
	}

	l := NewLocator(anchor)
	tests := []struct {
		recorded string
		want     string
		wantErr  bool
	}{
		{`D:\Backups\img-00-00.mrimg`, sibling, false},
		{other, other, false},
		{"/moved/away/img-00-00.mrimg", sibling, false},
		{`D:\Backups\gone.mrimg`, "", true},
	}
	for _, tt := range tests {
		got, err := l.Locate(tt.recorded)
		if (err != nil) != tt.wantErr {
			t.Errorf("Locate(%q) error = %v, wantErr %v", tt.recorded, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Locate(%q) = %q; want %q", tt.recorded, got, tt.want)
		}
	}
}
