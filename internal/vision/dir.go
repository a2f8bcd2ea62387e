package vision

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DirCamera replays the PNG and JPEG images of a directory in name order.
type DirCamera struct {
	mu    sync.Mutex
	files []string
	loop  bool
	idx   int
	seq   uint64
}

// NewDirCamera lists the images in dir.
func NewDirCamera(dir string, loop bool) (*DirCamera, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".png" || ext == ".jpg" || ext == ".jpeg") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	sort.Strings(files)
	return &DirCamera{files: files, loop: loop}, nil
}

// Capture decodes the next image, or returns nil once all were served.
func (c *DirCamera) Capture(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx >= len(c.files) {
		if !c.loop {
			return nil, nil
		}
		c.idx = 0
	}
	path := c.files[c.idx]
	c.idx++

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	c.seq++
	return &Frame{Seq: c.seq, Captured: time.Now(), Image: img}, nil
}
