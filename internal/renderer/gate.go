package renderer

import (
	"sync"

	"nhpbrowser/internal/ledger"
)

// gate 记录渲染器自身发起的导航，这些导航不再经过导航守卫
type gate struct {
	mu       sync.Mutex
	expected map[string]int
	bypass   int
}

func newGate() *gate {
	return &gate{expected: make(map[string]int)}
}

// expect 登记一次程序加载的 URL，按规范形式记录以匹配浏览器回报的请求地址
func (g *gate) expect(url string) {
	key := ledger.Canonical(url)
	g.mu.Lock()
	g.expected[key]++
	g.mu.Unlock()
}

// allowNext 放行下一次主框架文档请求，用于前进后退与刷新
func (g *gate) allowNext() {
	g.mu.Lock()
	g.bypass++
	g.mu.Unlock()
}

// take 判断请求是否为自身发起，是则消耗一次登记
func (g *gate) take(url string) bool {
	key := ledger.Canonical(url)
	g.mu.Lock()
	defer g.mu.Unlock()
	if n := g.expected[key]; n > 0 {
		if n == 1 {
			delete(g.expected, key)
		} else {
			g.expected[key] = n - 1
		}
		return true
	}
	if g.bypass > 0 {
		g.bypass--
		return true
	}
	return false
}

// reset 清空全部登记
func (g *gate) reset() {
	g.mu.Lock()
	g.expected = make(map[string]int)
	g.bypass = 0
	g.mu.Unlock()
}
