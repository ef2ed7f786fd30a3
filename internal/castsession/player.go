package castsession

import "sync"

// Callback is the one-shot completion handle of a player operation.
// Exactly one of its methods is invoked, exactly once, per operation.
type Callback interface {
	SendSuccess(payload any)
	SendError(payload any)
}

// MediaPlayer is the uniform remote player contract every casting backend implements.
type MediaPlayer interface {
	DescribeDevice() map[string]any
	Load(title, url, mimeType string, cb Callback)
	Start(cb Callback)
	Stop(cb Callback)
	Play(cb Callback) error
	Pause(cb Callback) error
	End(cb Callback)
}

// CallbackFuncs adapts a pair of functions to Callback. Nil functions are skipped.
type CallbackFuncs struct {
	Success func(payload any)
	Error   func(payload any)
}

func (f CallbackFuncs) SendSuccess(payload any) {
	if f.Success != nil {
		f.Success(payload)
	}
}

func (f CallbackFuncs) SendError(payload any) {
	if f.Error != nil {
		f.Error(payload)
	}
}

// onceCallback makes sure cb sees a single result. cb may be nil.
type onceCallback struct {
	cb   Callback
	once sync.Once
}

func once(cb Callback) *onceCallback {
	if o, ok := cb.(*onceCallback); ok {
		return o
	}
	return &onceCallback{cb: cb}
}

func (o *onceCallback) SendSuccess(payload any) {
	o.once.Do(func() {
		if o.cb != nil {
			o.cb.SendSuccess(payload)
		}
	})
}

func (o *onceCallback) SendError(payload any) {
	o.once.Do(func() {
		if o.cb != nil {
			o.cb.SendError(payload)
		}
	})
}
