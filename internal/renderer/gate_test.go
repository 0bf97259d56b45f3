package renderer

import "testing"

func TestGate(t *testing.T) {
	g := newGate()

	if g.take("https://a.example/") {
		t.Fatal("未登记的请求不应放行")
	}

	g.expect("https://10.0.0.1/")
	g.expect("https://10.0.0.1/")
	if !g.take("https://10.0.0.1/") || !g.take("https://10.0.0.1/") {
		t.Fatal("登记两次应放行两次")
	}
	if g.take("https://10.0.0.1/") {
		t.Error("登记次数耗尽后不应继续放行")
	}

	g.allowNext()
	if !g.take("https://any.example/") {
		t.Error("allowNext 后下一次请求应放行")
	}
	if g.take("https://any.example/") {
		t.Error("allowNext 只放行一次")
	}

	g.expect("https://b.example/")
	g.allowNext()
	g.reset()
	if g.take("https://b.example/") || g.take("https://c.example/") {
		t.Error("reset 后不应保留任何登记")
	}
}

func TestGate_CanonicalMatch(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		request  string
	}{
		{"bare host", "https://203.0.113.5", "https://203.0.113.5/"},
		{"default port", "https://203.0.113.5:443/a", "https://203.0.113.5/a"},
		{"upper case host", "https://Portal.Example/x", "https://portal.example/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGate()
			g.expect(tt.expected)
			if !g.take(tt.request) {
				t.Fatalf("登记 %q 后请求 %q 应放行", tt.expected, tt.request)
			}
			if g.take(tt.request) {
				t.Error("登记应只消耗一次")
			}
		})
	}
}

func TestDetachedRenderer(t *testing.T) {
	r := New(Options{})
	if r.Attached() {
		t.Fatal("新建渲染器不应处于连接状态")
	}
	if err := r.Load("https://a.example/"); err == nil {
		t.Error("未连接时加载应返回错误")
	}
	if err := r.StopLoading(); err != nil {
		t.Errorf("未连接时停止加载应静默成功: %v", err)
	}
	if err := r.GoBack(); err == nil {
		t.Error("未连接时后退应返回错误")
	}
}
