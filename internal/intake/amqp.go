// BSD 2-Clause License
//
// Copyright (c) 2020, Andrea Giacomo Baldan
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
//
// * Redistributions of source code must retain the above copyright notice, this
//   list of conditions and the following disclaimer.
//
// * Redistributions in binary form must reproduce the above copyright notice,
//   this list of conditions and the following disclaimer in the documentation
//   and/or other materials provided with the distribution.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE
// FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL
// DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION) HOWEVER
// CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY,
// OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH DAMAGE.

package intake

import (
	"encoding/json"
	"log"
	"time"

	"github.com/streadway/amqp"
)

// AMQPForwarder mirrors accepted webhook events onto an AMQP exchange so
// that out-of-process consumers (a separate CI runner fleet, for instance)
// can observe commit activity without polling the admin surface. It is
// optional: a forwarder built with an empty url is a no-op, and the
// orchestration engine's behavior never depends on whether this succeeds.
type AMQPForwarder struct {
	url, queue string
	logger     *log.Logger
}

// NewAMQPForwarder returns a forwarder publishing to queueName at url. If
// url is empty, Forward is a no-op.
func NewAMQPForwarder(url, queueName string, logger *log.Logger) *AMQPForwarder {
	return &AMQPForwarder{url: url, queue: queueName, logger: logger}
}

type forwardedWebhook struct {
	CloneURL  string    `json:"clone_url"`
	Timestamp time.Time `json:"timestamp"`
}

// Forward publishes cloneURL to the configured AMQP queue. It connects,
// publishes and disconnects per call; failures are logged and swallowed
// since this path is additive and must never block or fail webhook intake.
func (f *AMQPForwarder) Forward(cloneURL string) {
	if f.url == "" {
		return
	}
	body, err := json.Marshal(forwardedWebhook{CloneURL: cloneURL, Timestamp: time.Now()})
	if err != nil {
		f.logger.Printf("amqp forward: encode failed: %v", err)
		return
	}
	if err := f.publish(body); err != nil {
		f.logger.Printf("amqp forward: %v", err)
	}
}

func (f *AMQPForwarder) publish(body []byte) error {
	conn, err := amqp.Dial(f.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(f.queue, false, false, false, false, nil)
	if err != nil {
		return err
	}

	return ch.Publish("", q.Name, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}
