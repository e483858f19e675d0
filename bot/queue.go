package bot

import "sync"

// userQueue runs the jobs of one user in arrival order. Different users run
// concurrently.
type userQueue struct {
	mu   sync.Mutex
	jobs map[int64][]func() // present while a worker drains the user
	wg   sync.WaitGroup
}

func newUserQueue() *userQueue {
	return &userQueue{jobs: make(map[int64][]func())}
}

// push queues job behind the user's earlier jobs.
func (q *userQueue) push(userID int64, job func()) {
	q.mu.Lock()
	queued, running := q.jobs[userID]
	q.jobs[userID] = append(queued, job)
	q.mu.Unlock()

	if running {
		return
	}
	q.wg.Add(1)
	go q.drain(userID)
}

func (q *userQueue) drain(userID int64) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		queued := q.jobs[userID]
		if len(queued) == 0 {
			delete(q.jobs, userID)
			q.mu.Unlock()
			return
		}
		job := queued[0]
		q.jobs[userID] = queued[1:]
		q.mu.Unlock()

		job()
	}
}

// wait blocks until every queued job has run.
func (q *userQueue) wait() {
	q.wg.Wait()
}
