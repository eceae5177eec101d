// Copyright (c) 2024 The GroupDB Authors. All rights reserved.
// SPDX-License-Identifier: MIT

// Package failures implements a small failure-injection service: a
// global configuration object, addressable over a RESTful API, that
// lets an operator or a test dial up synthetic failures in a running
// process without restarting it.
//
// Think of the failure configuration object as a map. A package adds
// a key to the map by registering a failure handler under that key.
// The value of that key has type "json.RawMessage" and starts out
// "nil". It's up to the handler to interpret it.
//
// A failure handler is called whenever the value of its registered
// key is set or reset, and must have type:
//
//		func(value json.RawMessage) error
//
// Clients read the current configuration with an HTTP GET to the
// failure service; it returns all configurations in JSON, one
// top-level key per registered handler, valued with that handler's
// current configuration.
//
// Clients modify the configuration with an HTTP POST carrying the new
// configuration in JSON. Each POST overwrites the entire
// configuration; a key missing from the POST body is treated as
// having the value "null(nil)".
//
// Below is an example of using the failure service to make mmap
// allocation fail on demand, as internal/arena does for fault-injection
// tests.
//
// (1) Implement a handler and associate it with a key. It's up to the
//	   implementer to define the shape of the value ('cfg'); it might
//	   be a float, a string, or a nested JSON object. The handler
//	   deserializes the value to whatever type it expects:
//
//			func (f *faultInjector) handler(cfg json.RawMessage) error {
//				f.lock.Lock()
//				defer f.lock.Unlock()
//
//				if cfg == nil {
//					f.prob = make(map[string]float32)
//					return nil
//				}
//
//				var m map[string]float32
//				if err := json.Unmarshal(cfg, &m); err != nil {
//					return err
//				}
//				f.prob = m
//				return nil
//			}
//
// (2) Register the handler under a key so updates to that key reach
//	   it:
//
//			failures.Register("arena.alloc_fail_prob", injector.handler)
//
// (3) Read the current configuration with a GET:
//
//			curl http://<host>:<failure_port>/<failure_service_path>
//
// (4) Update it with a POST. Here's an example that makes every
//	   allocation on the "arena" key fail:
//
//			curl http://<host>:<failure_port>/<failure_service_path> -XPOST -d \
//			'{"arena.alloc_fail_prob": {"alloc": 1.0}}'
//
// Posting an empty JSON object "{}" resets every registered key's
// configuration to nil, disabling all injected failures.
package failures

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
)

// DefaultFailureServicePath is the path that the failure service handler will
// be mounted on, by default.
const DefaultFailureServicePath = "/__failure__"

var (
	config = configuration{
		configs:  make(map[string]*json.RawMessage),
		handlers: make(map[string]func(json.RawMessage) error),
	}
)

// Init mounts the failure service on the default path on the default http mux.
func Init() {
	InitWithPathAndMux(http.DefaultServeMux, DefaultFailureServicePath)
}

// InitWithPathAndMux mounts the failure service on the given path and mux.
func InitWithPathAndMux(mux *http.ServeMux, path string) {
	mux.HandleFunc(path, failureHTTPHandler)
}

// Register registers a failure handler to a given key of failure configuration.
// You can not register a failure handler to a key which has already been
// registered.
func Register(key string, handler func(json.RawMessage) error) error {
	return config.register(key, handler)
}

func failureHTTPHandler(writer http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case "GET":
		doGet(writer, req)
	case "POST":
		doPost(writer, req)
	default:
		replyError(writer, fmt.Sprintf("Unsupported method %s", req.Method), http.StatusMethodNotAllowed)
	}
}

func doGet(writer http.ResponseWriter, req *http.Request) {
	enc := json.NewEncoder(writer)
	enc.Encode(&config)
}

func doPost(writer http.ResponseWriter, req *http.Request) {
	// Read json data posted from clients.
	jsonData, err := ioutil.ReadAll(req.Body)
	if err != nil {
		replyError(writer, err.Error(), http.StatusBadRequest)
		return
	}

	// Decode the json data into a map object.
	var updates map[string]*json.RawMessage
	dec := json.NewDecoder(bytes.NewBuffer(jsonData))
	if err = dec.Decode(&updates); err != nil {
		replyError(writer, err.Error(), http.StatusBadRequest)
		return
	}

	// Apply the new state to the failure configration.
	err = config.applyUpdates(updates)
	if err != nil {
		replyError(writer, err.Error(), http.StatusBadRequest)
		return
	}
}

func replyError(w http.ResponseWriter, errorStr string, code int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	fmt.Fprintln(w, errorStr)
}
