package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	StorageTypeFile = "file" // StorageTypeFile keeps the checkpoint in a plain text file
	StorageTypeBolt = "bolt" // StorageTypeBolt keeps the checkpoint in a bbolt database
	StorageTypeEtcd = "etcd" // StorageTypeEtcd keeps the checkpoint under an etcd key

	_defaultStorageType            = StorageTypeFile
	_defaultStoragePath            = "idgen.checkpoint"
	_defaultStorageEtcdRootPath    = "/idgen"
	_defaultStorageEtcdKey         = "node"
	_defaultStorageEtcdDialTimeout = 3 * time.Second
)

var (
	_defaultStorageEtcdEndpoints = []string{"http://127.0.0.1:2379"}
)

// Storage is the configuration of the checkpoint store
type Storage struct {
	Type string
	// Path is the checkpoint location for the file and bolt store.
	Path string
	Etcd StorageEtcd
}

// StorageEtcd is the configuration of the etcd checkpoint store
type StorageEtcd struct {
	Endpoints   []string
	RootPath    string
	Key         string
	DialTimeout time.Duration
}

func NewStorage() *Storage {
	return &Storage{}
}

// Adjust normalizes the storage type and drops empty etcd endpoints
func (s *Storage) Adjust() error {
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
	if s.Type == "" {
		s.Type = _defaultStorageType
	}
	s.Etcd.RootPath = strings.TrimSuffix(s.Etcd.RootPath, "/")

	endpoints := make([]string, 0, len(s.Etcd.Endpoints))
	for _, ep := range s.Etcd.Endpoints {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}
	s.Etcd.Endpoints = endpoints
	return nil
}

func (s *Storage) Validate() error {
	switch s.Type {
	case StorageTypeFile, StorageTypeBolt:
		if s.Path == "" {
			return errors.Errorf("empty storage path for storage type `%s`", s.Type)
		}
	case StorageTypeEtcd:
		if len(s.Etcd.Endpoints) == 0 {
			return errors.New("empty etcd endpoints")
		}
		if s.Etcd.Key == "" {
			return errors.New("empty etcd key")
		}
		if strings.Contains(s.Etcd.Key, "/") {
			return errors.Errorf("invalid etcd key `%s`", s.Etcd.Key)
		}
		if s.Etcd.DialTimeout <= 0 {
			return errors.Errorf("invalid etcd dial timeout `%s`", s.Etcd.DialTimeout)
		}
	default:
		return errors.Errorf("unknown storage type `%s`", s.Type)
	}
	return nil
}

func storageConfigure(v *viper.Viper, fs *pflag.FlagSet) {
	fs.String("storage-type", _defaultStorageType, "type of the checkpoint store, one of: file|bolt|etcd")
	fs.String("storage-path", _defaultStoragePath, "path of the checkpoint file (file) or database (bolt)")
	fs.StringSlice("storage-etcd-endpoints", _defaultStorageEtcdEndpoints, "etcd endpoints of the checkpoint store (etcd)")
	fs.String("storage-etcd-root-path", _defaultStorageEtcdRootPath, "prefix of the checkpoint key (etcd)")
	fs.String("storage-etcd-key", _defaultStorageEtcdKey, "name identifying this allocator's checkpoint (etcd)")
	fs.Duration("storage-etcd-dial-timeout", _defaultStorageEtcdDialTimeout, "timeout for connecting to etcd (etcd)")
	_ = v.BindPFlag("storage.type", fs.Lookup("storage-type"))
	_ = v.BindPFlag("storage.path", fs.Lookup("storage-path"))
	_ = v.BindPFlag("storage.etcd.endpoints", fs.Lookup("storage-etcd-endpoints"))
	_ = v.BindPFlag("storage.etcd.rootPath", fs.Lookup("storage-etcd-root-path"))
	_ = v.BindPFlag("storage.etcd.key", fs.Lookup("storage-etcd-key"))
	_ = v.BindPFlag("storage.etcd.dialTimeout", fs.Lookup("storage-etcd-dial-timeout"))
}
