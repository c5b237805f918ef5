package kdb

import (
	"fmt"
	"os"

	"github.com/elastic/go-freelru"
)

// Pager owns the backing file, the page cache, and page allocation.
// Page 0 always holds the file header and the catalog root; it is kept
// resident in memory for the lifetime of the Pager and never participates
// in LRU eviction. Any other page can be pinned with Pin while an
// in-flight B-tree operation holds a live reference to it, which
// withdraws it from LRU tracking until a matching Unpin.
type Pager struct {
	file     *os.File
	path     string
	readOnly bool
	closed   bool
	logger   Logger

	header *Page // page 0, always resident

	pages  map[PageNum]*Page               // authoritative resident-page store
	order  *freelru.LRU[PageNum, struct{}] // LRU recency order; drives eviction of `pages`
	pinned map[PageNum]int                 // refcount of pages borrowed by an in-flight operation

	fileSize PageNum // number of pages physically present in the backing file
}

// hashPageNum is the freelru hash callback for PageNum keys. Page numbers
// are small, dense, allocator-assigned integers, so the identity function
// is already well distributed; no need to route it through xxhash (which
// this package already uses for page/header checksums).
func hashPageNum(n PageNum) uint32 { return uint32(n) }

// openPager opens or creates the backing file at path, validating or
// initializing the file header and catalog root.
func openPager(path string, opts options) (*Pager, error) {
	flag := os.O_RDWR | os.O_CREATE
	if opts.readOnly {
		flag = os.O_RDONLY
	}

	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("kdb: open %s: %w", path, err)
	}

	if err := flockExclusive(f); err != nil {
		f.Close()
		return nil, err
	}

	p := &Pager{
		file:     f,
		path:     path,
		readOnly: opts.readOnly,
		logger:   opts.logger,
		pages:    make(map[PageNum]*Page),
		pinned:   make(map[PageNum]int),
	}

	order, err := freelru.New[PageNum, struct{}](uint32(opts.cacheSize), hashPageNum)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("kdb: creating page cache: %w", err)
	}
	order.SetOnEvict(func(n PageNum, _ struct{}) {
		p.evict(n)
	})
	p.order = order

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if info.Size() == 0 {
		if opts.readOnly {
			f.Close()
			return nil, ErrShortHeader
		}
		if err := p.initNewFile(); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		if err := p.loadExistingFile(info.Size()); err != nil {
			f.Close()
			return nil, err
		}
	}

	p.logger.Info("pager opened", "path", path, "cacheSize", opts.cacheSize)
	return p, nil
}

// initNewFile writes a fresh 100-byte header and an empty leaf catalog
// root, both packed into page 0.
func (p *Pager) initNewFile() error {
	h := newPage(0)
	h.writeMagic()
	h.setNextFreePage(1)
	h.setHasFreeList(false)
	InitLeaf(h, 0, true)
	h.writeHeaderChecksum()
	h.writeChecksum()

	if err := p.writePageToDisk(h); err != nil {
		return err
	}
	p.header = h
	p.fileSize = 1
	return nil
}

// loadExistingFile validates the magic and header checksum, then loads
// page 0 as the resident header/catalog-root page.
func (p *Pager) loadExistingFile(size int64) error {
	if size < PageSize {
		return ErrShortHeader
	}

	h := newPage(0)
	n, err := p.file.ReadAt(h.data[:], 0)
	if err != nil || n != PageSize {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}

	magic := h.readMagic()
	if magic != Magic {
		return ErrBadMagic
	}
	if !h.verifyHeaderChecksum() {
		return ErrCorruptNode
	}
	if !h.verifyChecksum() {
		return ErrCorruptNode
	}

	p.header = h
	p.fileSize = PageNum(size / PageSize)
	return nil
}

// GetPage returns the page for n, loading it from disk on first access.
// Pages beyond the file's physical extent (freshly allocated, not yet
// flushed) are handed back as zeroed buffers; the file is extended on
// first write.
func (p *Pager) GetPage(n PageNum) (*Page, error) {
	if p.closed {
		return nil, ErrClosed
	}
	if n == 0 {
		return p.header, nil
	}

	if pg, ok := p.pages[n]; ok {
		if p.pinned[n] == 0 {
			p.order.Add(n, struct{}{})
		}
		return pg, nil
	}

	var pg *Page
	if n < p.fileSize {
		loaded, err := p.readPageFromDisk(n)
		if err != nil {
			return nil, err
		}
		pg = loaded
	} else {
		pg = newPage(n)
	}

	p.pages[n] = pg
	if p.pinned[n] == 0 {
		p.order.Add(n, struct{}{})
	}
	return pg, nil
}

// Pin marks n as borrowed by the current operation, removing it from LRU
// tracking so it cannot be chosen for eviction. Pins nest: a page pinned
// twice needs two Unpin calls before it becomes evictable again. Pinning
// page 0 is a no-op since it never participates in LRU eviction.
func (p *Pager) Pin(n PageNum) {
	if n == 0 {
		return
	}
	p.pinned[n]++
	p.order.Remove(n)
}

// Unpin releases one pin taken by Pin. Once a page's refcount drops to
// zero it rejoins LRU tracking.
func (p *Pager) Unpin(n PageNum) {
	if n == 0 || p.pinned[n] == 0 {
		return
	}
	p.pinned[n]--
	if p.pinned[n] == 0 {
		delete(p.pinned, n)
		if _, ok := p.pages[n]; ok {
			p.order.Add(n, struct{}{})
		}
	}
}

// NewPage allocates a fresh page, advancing the header's next_free_page
// counter. The page's contents are undefined (zeroed) until the caller
// initializes it as a node.
func (p *Pager) NewPage() (PageNum, *Page, error) {
	if p.closed {
		return 0, nil, ErrClosed
	}
	if p.readOnly {
		return 0, nil, ErrReadOnly
	}

	n := p.header.nextFreePage()
	p.header.setNextFreePage(n + 1)

	pg := newPage(n)
	p.pages[n] = pg
	if p.pinned[n] == 0 {
		p.order.Add(n, struct{}{})
	}

	p.logger.Info("page allocated", "pageNum", n)
	return n, pg, nil
}

// evict is the freelru eviction callback: it flushes the victim if dirty
// and drops it from the resident-page map. Page 0 never reaches here
// since it is never added to p.order. A pinned page is left resident:
// Pin's own order.Remove also triggers this callback.
func (p *Pager) evict(n PageNum) {
	if p.pinned[n] > 0 {
		return
	}
	pg, ok := p.pages[n]
	if !ok {
		return
	}
	if pg.dirty {
		if err := p.writePageToDisk(pg); err != nil {
			p.logger.Error("evict flush failed", "pageNum", n, "err", err)
		}
	}
	delete(p.pages, n)
}

// readPageFromDisk reads page n directly from the backing file and
// verifies its checksum.
func (p *Pager) readPageFromDisk(n PageNum) (*Page, error) {
	pg := newPage(n)
	offset := int64(n) * PageSize
	read, err := p.file.ReadAt(pg.data[:], offset)
	if err != nil || read != PageSize {
		return nil, fmt.Errorf("%w: short read at page %d", ErrIO, n)
	}
	if !pg.verifyChecksum() {
		return nil, ErrCorruptNode
	}
	return pg, nil
}

// writePageToDisk writes a page's checksum and body to its offset in the
// backing file, extending the file if necessary.
func (p *Pager) writePageToDisk(pg *Page) error {
	if p.readOnly {
		return ErrReadOnly
	}
	if pg.num == 0 {
		pg.writeHeaderChecksum()
	}
	pg.writeChecksum()

	offset := int64(pg.num) * PageSize
	written, err := p.file.WriteAt(pg.data[:], offset)
	if err != nil || written != PageSize {
		return fmt.Errorf("%w: short write at page %d", ErrIO, pg.num)
	}
	pg.dirty = false
	if pg.num >= p.fileSize {
		p.fileSize = pg.num + 1
	}
	return nil
}

// FlushAll writes every dirty resident page and the header to disk and
// fsyncs the file.
func (p *Pager) FlushAll() error {
	if p.closed {
		return ErrClosed
	}
	if p.readOnly {
		return nil
	}

	for _, pg := range p.pages {
		if pg.dirty {
			if err := p.writePageToDisk(pg); err != nil {
				return err
			}
		}
	}
	if err := p.writePageToDisk(p.header); err != nil {
		return err
	}

	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// Close flushes all dirty pages and releases the file lock and handle.
func (p *Pager) Close() error {
	if p.closed {
		return nil
	}

	var flushErr error
	if !p.readOnly {
		flushErr = p.FlushAll()
	}

	p.closed = true
	_ = funlock(p.file)
	closeErr := p.file.Close()

	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
