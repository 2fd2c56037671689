package cache

import (
	"container/list"
	"sync"
	"time"
)

type LRUOpts struct {
	Size int
	// Now overrides the clock used for TTL expiry.
	Now func() time.Time
}

type entry struct {
	key       string
	val       any
	expiresAt time.Time
}

type getReq struct {
	key  string
	resp chan getResp
}

type getResp struct {
	val any
	ok  bool
}

type putReq struct {
	key  string
	val  any
	opts []PutOption
}

// LRU is a fixed-size cache owned by a single goroutine. All operations are
// messages to that goroutine, so no locking is needed around the list.
type LRU struct {
	getCh     chan getReq
	putCh     chan putReq
	delCh     chan string
	done      chan struct{}
	closeOnce sync.Once
	now       func() time.Time
}

func (L *LRU) closed() bool {
	select {
	case <-L.done:
		return true
	default:
		return false
	}
}

func (L *LRU) Get(key string) (any, bool) {
	if L.closed() {
		return nil, false
	}
	resp := make(chan getResp, 1)
	select {
	case L.getCh <- getReq{key: key, resp: resp}:
	case <-L.done:
		return nil, false
	}
	r := <-resp
	return r.val, r.ok
}

func (L *LRU) Put(key string, val any, opts ...PutOption) {
	if L.closed() {
		return
	}
	select {
	case L.putCh <- putReq{key: key, val: val, opts: opts}:
	case <-L.done:
	}
}

func (L *LRU) Delete(key string) {
	if L.closed() {
		return
	}
	select {
	case L.delCh <- key:
	case <-L.done:
	}
}

// Close stops the cache goroutine. Later calls behave like an empty cache.
func (L *LRU) Close() {
	L.closeOnce.Do(func() { close(L.done) })
}

func NewLRU(opts LRUOpts) *LRU {
	if opts.Size <= 0 {
		opts.Size = 128
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &LRU{
		getCh: make(chan getReq),
		putCh: make(chan putReq),
		delCh: make(chan string),
		done:  make(chan struct{}),
		now:   opts.Now,
	}

	go l.run(opts.Size)

	return l
}

func (L *LRU) run(size int) {
	ll := list.New()
	cache := make(map[string]*list.Element)

	remove := func(ele *list.Element) {
		ll.Remove(ele)
		delete(cache, ele.Value.(*entry).key)
	}

	for {
		select {
		case <-L.done:
			return
		case req := <-L.getCh:
			ele, ok := cache[req.key]
			if ok {
				e := ele.Value.(*entry)
				if !e.expiresAt.IsZero() && !L.now().Before(e.expiresAt) {
					remove(ele)
					ok = false
				}
			}
			if ok {
				ll.MoveToFront(ele)
				req.resp <- getResp{val: ele.Value.(*entry).val, ok: true}
			} else {
				req.resp <- getResp{ok: false}
			}
		case req := <-L.putCh:
			po := collectPutOptions(req.opts)
			var expiresAt time.Time
			if po.TTL > 0 {
				expiresAt = L.now().Add(po.TTL)
			}

			if ele, ok := cache[req.key]; ok {
				ll.MoveToFront(ele)
				e := ele.Value.(*entry)
				e.val = req.val
				e.expiresAt = expiresAt
			} else {
				ele := ll.PushFront(&entry{key: req.key, val: req.val, expiresAt: expiresAt})
				cache[req.key] = ele
				if ll.Len() > size {
					if last := ll.Back(); last != nil {
						remove(last)
					}
				}
			}
		case key := <-L.delCh:
			if ele, ok := cache[key]; ok {
				remove(ele)
			}
		}
	}
}

var _ Cache = (*LRU)(nil)
