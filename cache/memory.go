package cache

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Memory 是 Store 的进程内实现，带 TTL 惰性过期。
// 单元测试用，也可以作为单机部署时的显式退路。
type Memory struct {
	mu    sync.Mutex
	vals  map[string]memEntry
	sets  map[string]map[string]struct{}
	lists map[string]*memList
	subs  map[string][]chan string
}

type memEntry struct {
	val string
	exp time.Time // 零值表示不过期
}

type memList struct {
	items []string
	exp   time.Time
}

func NewMemory() *Memory {
	return &Memory{
		vals:  make(map[string]memEntry),
		sets:  make(map[string]map[string]struct{}),
		lists: make(map[string]*memList),
		subs:  make(map[string][]chan string),
	}
}

func (m *Memory) expired(e memEntry) bool {
	return !e.exp.IsZero() && time.Now().After(e.exp)
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.vals[key]
	if !ok || m.expired(e) {
		delete(m.vals, key)
		return "", ErrNil
	}
	return e.val, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memEntry{val: value}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	m.vals[key] = e
	return nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.vals[key]
	if !ok || m.expired(e) {
		e = memEntry{val: "0"}
	}
	n, err := strconv.ParseInt(e.val, 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	e.val = strconv.FormatInt(n, 10)
	m.vals[key] = e
	return n, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.vals[key]; ok {
		e.exp = time.Now().Add(ttl)
		m.vals[key] = e
	}
	if l, ok := m.lists[key]; ok {
		l.exp = time.Now().Add(ttl)
	}
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.vals, key)
		delete(m.sets, key)
		delete(m.lists, key)
	}
	return nil
}

func (m *Memory) ScanPrefix(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k, e := range m.vals {
		if m.expired(e) {
			delete(m.vals, k)
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	for _, mem := range members {
		set[mem] = struct{}{}
	}
	return nil
}

func (m *Memory) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		return nil
	}
	for _, mem := range members {
		delete(set, mem)
	}
	if len(set) == 0 {
		delete(m.sets, key)
	}
	return nil
}

func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.sets[key]
	members := make([]string, 0, len(set))
	for mem := range set {
		members = append(members, mem)
	}
	sort.Strings(members)
	return members, nil
}

func (m *Memory) RPush(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[key]
	if !ok || (!l.exp.IsZero() && time.Now().After(l.exp)) {
		l = &memList{}
		m.lists[key] = l
	}
	l.items = append(l.items, value)
	return nil
}

func (m *Memory) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[key]
	if !ok || (!l.exp.IsZero() && time.Now().After(l.exp)) {
		delete(m.lists, key)
		return nil, nil
	}
	n := int64(len(l.items))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, l.items[start:stop+1])
	return out, nil
}

func (m *Memory) Publish(_ context.Context, channel, payload string) error {
	m.mu.Lock()
	subs := append([]chan string(nil), m.subs[channel]...)
	m.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- payload:
		default: // 订阅方消费不过来就丢，跟 Redis pub/sub 一样不保投递
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	ch := make(chan string, 64)
	m.mu.Lock()
	m.subs[channel] = append(m.subs[channel], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		subs := m.subs[channel]
		for i, c := range subs {
			if c == ch {
				m.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
