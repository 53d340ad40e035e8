package relay

import (
	"sort"
	"sync"
)

// Registry 在线状态的唯一事实来源。
// byConn 收录所有存活连接（含未绑定身份的）；byUser 只收录已绑定身份的，
// 且每个身份至多一条——后到的连接直接顶掉旧绑定（last-connect-wins），
// 旧连接不强制断开，只是不再可寻址。
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]*Client // user -> 最新连接
	byConn map[string]*Client // conn_id -> client

	// onChange 在每次 Identify / Remove 后（释放锁之后）被调用一次，
	// 由中继核心用来重播在线名单。
	onChange func()
}

func NewRegistry(onChange func()) *Registry {
	return &Registry{
		byUser:   make(map[string]*Client),
		byConn:   make(map[string]*Client),
		onChange: onChange,
	}
}

// AddConn 登记一条新连接（此时还是匿名的）。
func (r *Registry) AddConn(c *Client) {
	r.mu.Lock()
	r.byConn[c.ConnID] = c
	r.mu.Unlock()
}

// Identify 幂等地把身份绑定到连接；旧绑定被静默覆盖，不报错。
func (r *Registry) Identify(userID string, c *Client) {
	r.mu.Lock()
	r.byUser[userID] = c
	r.mu.Unlock()

	if r.onChange != nil {
		r.onChange()
	}
}

// Lookup 返回该身份的当前连接；不在线返回 nil。
func (r *Registry) Lookup(userID string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUser[userID]
}

// Remove 按连接句柄清理：断开事件只能可靠拿到句柄，所以按句柄匹配，
// 而不是按身份——否则旧连接的迟到断开会误删新绑定。没匹配到也算成功。
func (r *Registry) Remove(connID string) (userID string, removed bool) {
	r.mu.Lock()
	c := r.byConn[connID]
	delete(r.byConn, connID)
	if c != nil {
		for user, bound := range r.byUser {
			if bound.ConnID == connID {
				delete(r.byUser, user)
				userID, removed = user, true
				break
			}
		}
	}
	r.mu.Unlock()

	// 断开无论是否删到条目都广播一次，保证名单最终一致
	if r.onChange != nil {
		r.onChange()
	}
	return userID, removed
}

// Snapshot 当前在线身份集合，排序保证稳定输出。
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.byUser))
	for user := range r.byUser {
		out = append(out, user)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// AllConns 所有存活连接（广播目标，包含匿名连接）。
func (r *Registry) AllConns() []*Client {
	r.mu.RLock()
	out := make([]*Client, 0, len(r.byConn))
	for _, c := range r.byConn {
		out = append(out, c)
	}
	r.mu.RUnlock()
	return out
}

// OnlineCount 在线（已绑定）身份数。
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
