package cacheserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/adrg/xdg"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"

	"github.com/vcscache/vcscache/pkg/index"
	"github.com/vcscache/vcscache/pkg/objectstore"
)

const (
	indexBase = "/index"
	queueBase = "/queue"
)

type Server struct {
	dir      string
	storage  *Storage
	router   *httprouter.Router
	listener net.Listener
	server   *http.Server
	logger   logrus.FieldLogger

	gcing atomic.Bool
	gcAt  time.Time

	outboundIP string
}

// Start brings up the server on port, listening on all interfaces. A zero
// port picks a free one. Records live in a bolt database under dir, blobs
// next to it. A nil logger discards logs.
func Start(dir, outboundIP string, port uint16, logger logrus.FieldLogger) (*Server, error) {
	s := &Server{}

	if logger == nil {
		discard := logrus.New()
		discard.Out = io.Discard
		logger = discard
	}
	logger = logger.WithField("module", "cacheserver")
	s.logger = logger

	if dir == "" {
		dir = filepath.Join(xdg.CacheHome, "vcscache", "server")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s.dir = dir

	storage, err := NewStorage(filepath.Join(dir, "artifacts"))
	if err != nil {
		return nil, err
	}
	s.storage = storage

	if outboundIP != "" {
		s.outboundIP = outboundIP
	} else if ip, err := getOutboundIP(); err != nil {
		return nil, fmt.Errorf("unable to determine outbound IP address: %w", err)
	} else {
		s.outboundIP = ip.String()
	}

	router := httprouter.New()
	router.GET(indexBase+"/task/*namespace", s.middleware(s.find))
	router.PUT(indexBase+"/task/*namespace", s.middleware(s.insert))
	router.POST(queueBase+"/task/:taskId/runs/:runId/artifacts/*name", s.middleware(s.createDestination))
	router.PUT(queueBase+"/task/:taskId/artifacts/*name", s.middleware(s.putBlob))
	router.GET(queueBase+"/task/:taskId/artifacts/*name", s.middleware(s.getBlob))

	s.router = router

	s.gc()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port)) // listen on all interfaces
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		ReadHeaderTimeout: 2 * time.Second,
		Handler:           router,
	}
	go func() {
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			logger.Errorf("http serve: %v", err)
		}
	}()
	s.listener = listener
	s.server = server

	return s, nil
}

// ExternalURL is the base URL other machines reach this server under. The
// index routes live at ExternalURL()+"/index", the queue routes at
// ExternalURL()+"/queue".
func (s *Server) ExternalURL() string {
	return fmt.Sprintf("http://%s:%d",
		s.outboundIP,
		s.listener.Addr().(*net.TCPAddr).Port)
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	var retErr error
	if s.server != nil {
		err := s.server.Close()
		if err != nil {
			retErr = err
		}
		s.server = nil
	}
	if s.listener != nil {
		err := s.listener.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
		if err != nil {
			retErr = err
		}
		s.listener = nil
	}
	return retErr
}

func (s *Server) openDB() (*bolthold.Store, error) {
	return bolthold.Open(filepath.Join(s.dir, "index.db"), 0o644, &bolthold.Options{
		Encoder: json.Marshal,
		Decoder: json.Unmarshal,
		Options: &bbolt.Options{
			Timeout:      5 * time.Second,
			NoGrowSync:   bbolt.DefaultOptions.NoGrowSync,
			FreelistType: bbolt.DefaultOptions.FreelistType,
		},
	})
}

// GET /index/task/*namespace
func (s *Server) find(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	namespace := strings.TrimPrefix(params.ByName("namespace"), "/")
	if namespace == "" {
		s.responseJSON(w, r, 400, fmt.Errorf("namespace is empty"))
		return
	}

	db, err := s.openDB()
	if err != nil {
		s.responseJSON(w, r, 500, err)
		return
	}
	defer db.Close()

	var records []*Record
	query := bolthold.Where("Namespace").Eq(namespace).
		And("Expires").Gt(time.Now().Unix()).
		SortBy("Rank", "CreatedAt").Reverse()
	if err := db.Find(&records, query); err != nil {
		s.responseJSON(w, r, 500, err)
		return
	}
	if len(records) == 0 {
		s.responseJSON(w, r, 404, fmt.Errorf("namespace %q is not indexed", namespace))
		return
	}

	best := records[0]
	s.responseJSON(w, r, 200, &index.Record{
		TaskID:  best.TaskID,
		Rank:    best.Rank,
		Expires: time.Unix(best.Expires, 0).UTC(),
		Data:    best.Data,
	})
}

// PUT /index/task/*namespace
func (s *Server) insert(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	namespace := strings.TrimPrefix(params.ByName("namespace"), "/")
	if namespace == "" {
		s.responseJSON(w, r, 400, fmt.Errorf("namespace is empty"))
		return
	}

	wire := &index.Record{}
	if err := json.NewDecoder(r.Body).Decode(wire); err != nil {
		s.responseJSON(w, r, 400, err)
		return
	}
	if err := wire.Validate(); err != nil {
		s.responseJSON(w, r, 400, err)
		return
	}

	db, err := s.openDB()
	if err != nil {
		s.responseJSON(w, r, 500, err)
		return
	}
	defer db.Close()

	record := &Record{
		Namespace: namespace,
		TaskID:    wire.TaskID,
		Rank:      wire.Rank,
		Expires:   wire.Expires.Unix(),
		Data:      wire.Data,
		CreatedAt: time.Now().Unix(),
	}
	if err := db.Insert(bolthold.NextSequence(), record); err != nil {
		s.responseJSON(w, r, 500, err)
		return
	}
	// write back id to db
	if err := db.Update(record.ID, record); err != nil {
		s.responseJSON(w, r, 500, err)
		return
	}

	s.responseJSON(w, r, 200, map[string]any{
		"id": record.ID,
	})
}

// POST /queue/task/:taskId/runs/:runId/artifacts/*name
func (s *Server) createDestination(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	taskID := params.ByName("taskId")
	name := strings.TrimPrefix(params.ByName("name"), "/")

	spec := &objectstore.DestinationSpec{}
	if err := json.NewDecoder(r.Body).Decode(spec); err != nil {
		s.responseJSON(w, r, 400, err)
		return
	}
	if spec.Expires.IsZero() {
		s.responseJSON(w, r, 400, fmt.Errorf("destination has no expiration"))
		return
	}
	if _, err := s.storage.filename(taskID, name); err != nil {
		s.responseJSON(w, r, 400, err)
		return
	}

	s.responseJSON(w, r, 200, &objectstore.Destination{
		PutURL: fmt.Sprintf("%s%s/task/%s/artifacts/%s", s.ExternalURL(), queueBase, taskID, name),
	})
}

// PUT /queue/task/:taskId/artifacts/*name
func (s *Server) putBlob(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	taskID := params.ByName("taskId")
	name := strings.TrimPrefix(params.ByName("name"), "/")

	if err := s.storage.Write(taskID, name, r.Body); err != nil {
		s.responseJSON(w, r, 500, err)
		return
	}
	s.responseJSON(w, r, 200)
}

// GET /queue/task/:taskId/artifacts/*name
func (s *Server) getBlob(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	taskID := params.ByName("taskId")
	name := strings.TrimPrefix(params.ByName("name"), "/")

	s.storage.Serve(w, r, taskID, name)
}

func (s *Server) middleware(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		s.logger.Debugf("%s %s", r.Method, r.RequestURI)
		handler(w, r, params)
		go s.gc()
	}
}

// gc drops expired records and blobs that outlived the retention window. It
// runs at most once an hour, triggered by request traffic.
func (s *Server) gc() {
	if !s.gcing.CompareAndSwap(false, true) {
		return
	}
	defer s.gcing.Store(false)

	if time.Since(s.gcAt) < time.Hour {
		s.logger.Debugf("skip gc: %v", s.gcAt.String())
		return
	}
	s.gcAt = time.Now()
	s.logger.Debugf("gc: %v", s.gcAt.String())

	const keepBlobs = 30 * 24 * time.Hour

	db, err := s.openDB()
	if err != nil {
		return
	}
	defer db.Close()

	var records []*Record
	if err := db.Find(&records, bolthold.Where("Expires").Lt(time.Now().Unix())); err != nil {
		s.logger.Warnf("find expired records: %v", err)
	} else {
		for _, record := range records {
			if err := db.Delete(record.ID, record); err != nil {
				s.logger.Warnf("delete record: %v", err)
				continue
			}
			s.logger.Infof("deleted expired record: namespace %s task %s", record.Namespace, record.TaskID)
		}
	}

	if removed, err := s.storage.Prune(time.Now().Add(-keepBlobs)); err != nil {
		s.logger.Warnf("prune blobs: %v", err)
	} else if removed > 0 {
		s.logger.Infof("pruned %d blobs", removed)
	}
}

func (s *Server) responseJSON(w http.ResponseWriter, r *http.Request, code int, v ...any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	var data []byte
	if len(v) == 0 || v[0] == nil {
		data, _ = json.Marshal(struct{}{})
	} else if err, ok := v[0].(error); ok {
		s.logger.Errorf("%v %v: %v", r.Method, r.RequestURI, err)
		data, _ = json.Marshal(map[string]any{
			"error": err.Error(),
		})
	} else {
		data, _ = json.Marshal(v[0])
	}
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

// getOutboundIP gets the preferred outbound ip of this machine
// https://stackoverflow.com/a/37382208
func getOutboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP, nil
}
