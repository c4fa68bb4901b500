package engine

import "github.com/agsys/lowapp/internal/queue"

// Radio callbacks put the radio to sleep and queue the completion. They
// run on the radio's goroutine and never touch protocol state.

func (c *Context) onTxDone() {
	c.radio.Sleep()
	c.postHot(queue.EventTxDone, nil)
}

func (c *Context) onTxTimeout() {
	c.radio.Sleep()
	c.postHot(queue.EventTxTimeout, nil)
}

func (c *Context) onRxDone(payload []byte, rssi int16, snr int8) {
	c.radio.Sleep()
	c.postHot(queue.EventRxMessage, queue.RxPayload{
		Data: append([]byte(nil), payload...),
		RSSI: rssi,
		SNR:  snr,
	})
}

func (c *Context) onRxError() {
	c.radio.Sleep()
	c.postHot(queue.EventRxError, nil)
}

func (c *Context) onRxTimeout() {
	c.radio.Sleep()
	c.postHot(queue.EventRxTimeout, nil)
}

func (c *Context) onCadDone(detected bool) {
	c.radio.Sleep()
	c.postHot(queue.EventCadDone, detected)
}

// Timer callbacks

func (c *Context) onTimeout() {
	c.postHot(queue.EventTimeout, nil)
}

func (c *Context) onUnblock() {
	c.txBlocked.Store(false)
	c.postHot(queue.EventTxUnblock, nil)
}

func (c *Context) onCadTick() {
	c.cadFlag.Store(true)
	c.postHot(queue.EventCadTimeout, nil)
}
