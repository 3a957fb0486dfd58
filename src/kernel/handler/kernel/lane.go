package kernel

// lane runs the executions of one session in arrival order. Its goroutine exits as soon as the
// queue is empty.
type lane struct {
	jobs    []job
	running bool
}

type job struct {
	run func()
	// abort answers the request when it is dropped before running.
	abort func(err error)
}

func (k *kernel) enqueue(sessionID string, j job) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.lanes[sessionID]
	if !ok {
		l = &lane{}
		k.lanes[sessionID] = l
	}
	l.jobs = append(l.jobs, j)
	if l.running {
		return
	}
	l.running = true
	k.work.Add(1)
	go k.drain(sessionID, l)
}

func (k *kernel) drain(sessionID string, l *lane) {
	defer k.work.Done()
	for {
		k.mu.Lock()
		if len(l.jobs) == 0 {
			l.running = false
			if k.lanes[sessionID] == l {
				delete(k.lanes, sessionID)
			}
			k.mu.Unlock()
			return
		}
		j := l.jobs[0]
		l.jobs = l.jobs[1:]
		k.mu.Unlock()

		j.run()
	}
}

// abortLane drops the queued executions of a session. The running one is left alone.
func (k *kernel) abortLane(sessionID string, err error) int {
	k.mu.Lock()
	l, ok := k.lanes[sessionID]
	var dropped []job
	if ok {
		dropped, l.jobs = l.jobs, nil
	}
	k.mu.Unlock()

	for _, j := range dropped {
		j.abort(err)
	}
	return len(dropped)
}

// abortLanes drops every queued execution.
func (k *kernel) abortLanes(err error) {
	k.mu.Lock()
	ids := make([]string, 0, len(k.lanes))
	for id := range k.lanes {
		ids = append(ids, id)
	}
	k.mu.Unlock()

	for _, id := range ids {
		k.abortLane(id, err)
	}
}
