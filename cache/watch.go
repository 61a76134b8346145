package cache

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rushteam/discovery/pkg/logger"
)

// RuleWatcher 监听规则文件，文件写入后重新加载并替换 Invalidator 的规则集。
// 新文件解析失败时保留旧规则。
type RuleWatcher struct {
	Path     string
	Target   *Invalidator
	Debounce time.Duration
	Logger   *logger.Logger

	// OnReload 每次重新加载后回调，err 非 nil 表示加载失败
	OnReload func(rules *RuleSet, err error)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// Start 加载一次规则文件并开始监听，ctx 取消或 Close 后停止。
func (w *RuleWatcher) Start(ctx context.Context) error {
	abs, err := filepath.Abs(w.Path)
	if err != nil {
		return err
	}
	rules, err := LoadRules(abs)
	if err != nil {
		return err
	}
	w.Target.SetRules(rules)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// 监听目录比监听文件更可靠（编辑器通常是写临时文件再 rename）
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return err
	}

	w.mu.Lock()
	w.watcher = watcher
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(ctx, watcher, abs)
	return nil
}

// Close 停止监听。
func (w *RuleWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	<-w.done
	w.watcher = nil
	return err
}

func (w *RuleWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher, path string) {
	defer close(w.done)

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	name := filepath.Base(path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() { w.reload(path) })
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log().Warn("rule watcher error", "path", path, "error", err)
		}
	}
}

func (w *RuleWatcher) reload(path string) {
	rules, err := LoadRules(path)
	if err != nil {
		w.log().Error("reload invalidation rules failed, keeping previous rules", "path", path, "error", err)
	} else {
		w.Target.SetRules(rules)
		w.log().Info("invalidation rules reloaded", "path", path, "rules", len(rules.rules))
	}
	if w.OnReload != nil {
		w.OnReload(rules, err)
	}
}

func (w *RuleWatcher) log() *logger.Logger {
	if w.Logger == nil {
		return logger.NewNop()
	}
	return w.Logger
}
