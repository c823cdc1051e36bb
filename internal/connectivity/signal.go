package connectivity

import "sync"

// Status текущее состояние связи с бэкендом
type Status int

const (
	Offline Status = iota
	Online
)

func (s Status) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Signal хранит текущий статус и уведомляет подписчиков ровно один раз на
// каждый переход offline→online и online→offline. Повторная установка того
// же статуса переходом не считается.
type Signal struct {
	mu     sync.Mutex
	status Status
	nextID int
	subs   map[int]func(Status)
}

// NewSignal создаёт сигнал в указанном начальном состоянии
func NewSignal(initial Status) *Signal {
	return &Signal{status: initial, subs: make(map[int]func(Status))}
}

func (s *Signal) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Set переключает статус; подписчики вызываются вне блокировки,
// чтобы обработчик мог сам читать Status или переподписываться
func (s *Signal) Set(status Status) {
	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	handlers := make([]func(Status), 0, len(s.subs))
	for _, fn := range s.subs {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(status)
	}
}

// Subscribe регистрирует обработчик переходов и возвращает функцию отписки
func (s *Signal) Subscribe(fn func(Status)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
