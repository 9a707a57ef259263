package controller

// Observer receives every state transition.
type Observer func(State)

// Subscription is the handle returned by Controller.Subscribe.
type Subscription struct {
	id   uint64
	ctrl *Controller
}

// Unsubscribe stops further notifications. Safe to call more than once.
// Transitions published after it returns never reach the observer; a
// notification already being dispatched on another goroutine may still land.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.ctrl == nil {
		return
	}
	s.ctrl.unsubscribe(s.id)
}

// Subscribe registers obs. Observers are invoked synchronously, in
// registration order, once per transition and in transition order.
// Observers may call Refresh; the resulting transitions are delivered after
// the current one has reached every observer.
func (c *Controller) Subscribe(obs Observer) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribeLocked(obs)
}

// SubscribeWithState registers obs and returns the last state dispatched to
// observers. obs then receives exactly the transitions that follow it, so the
// snapshot is neither repeated nor skipped.
func (c *Controller) SubscribeWithState(obs Observer) (*Subscription, State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribeLocked(obs), c.dispatched
}

func (c *Controller) subscribeLocked(obs Observer) *Subscription {
	c.nextSubID++
	id := c.nextSubID
	c.observers[id] = obs
	c.order = append(c.order, id)

	return &Subscription{id: id, ctrl: c}
}

func (c *Controller) unsubscribe(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.observers[id]; !ok {
		return
	}
	delete(c.observers, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
}

// deliver hands s to every observer registered at call time that is still
// registered when its turn comes. Called without c.mu held.
func (c *Controller) deliver(s State, ids []uint64) {
	for _, id := range ids {
		c.mu.Lock()
		obs, ok := c.observers[id]
		c.mu.Unlock()
		if !ok {
			continue
		}
		c.notify(obs, s)
	}
}

func (c *Controller) notify(obs Observer, s State) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("state observer panicked", "state", s.Kind().String(), "panic", r)
		}
	}()
	obs(s)
}
