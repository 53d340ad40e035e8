package relay

import (
	"hash/fnv"

	"MsgRelay/logger"
)

type fanoutJob struct {
	conn    *Client
	payload []byte
}

// Fanout 把负载投递到目标连接。worker 按连接句柄分片，同一连接的投递
// 保持先后顺序（会话内次序依赖这一点）；不同连接之间并行。
// 投递永远是尽力而为：队列满就丢（DeliveryUnreachable 不上抛），
// 慢连接不会拖住别的事件。
type Fanout struct {
	shards []chan fanoutJob
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 1024
	}
	f := &Fanout{shards: make([]chan fanoutJob, workers)}
	for i := range f.shards {
		ch := make(chan fanoutJob, queue)
		f.shards[i] = ch
		go func() {
			for job := range ch {
				if !job.conn.Enqueue(job.payload) {
					logger.Debug("fanout drop: conn queue full or closed")
				}
			}
		}()
	}
	return f
}

// Deliver 定向推送到单条连接。
func (f *Fanout) Deliver(c *Client, payload []byte) {
	if c == nil || len(payload) == 0 {
		return
	}
	f.submit(fanoutJob{conn: c, payload: payload})
}

// Broadcast 向所有给定连接推送同一负载。
func (f *Fanout) Broadcast(conns []*Client, payload []byte) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	for _, c := range conns {
		f.submit(fanoutJob{conn: c, payload: payload})
	}
}

func (f *Fanout) submit(job fanoutJob) {
	ch := f.shards[f.shard(job.conn.ConnID)]
	select {
	case ch <- job:
	default:
		// 分片队列满：同样丢弃，保持无阻塞
		logger.Warn("fanout shard full, dropping delivery")
	}
}

func (f *Fanout) shard(connID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(connID))
	return int(h.Sum32() % uint32(len(f.shards)))
}

func (f *Fanout) Close() {
	for _, ch := range f.shards {
		close(ch)
	}
}
