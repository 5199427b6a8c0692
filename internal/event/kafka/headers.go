package kafka

import (
	kafkago "github.com/segmentio/kafka-go"
)

// headerCarrier адаптирует заголовки kafka сообщения к propagation.TextMapCarrier
type headerCarrier struct {
	headers *[]kafkago.Header
}

// Get возвращает первое значение по ключу
func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set заменяет значение ключа или добавляет новый заголовок
func (c headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafkago.Header{Key: key, Value: []byte(value)})
}

// Keys возвращает все ключи заголовков
func (c headerCarrier) Keys() []string {
	out := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		out = append(out, h.Key)
	}
	return out
}
