package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/openclaw/openclaw/pkg/types"
)

var (
	// Bucket names
	bucketTasks        = []byte("tasks")
	bucketPolicies     = []byte("policies")
	bucketCapabilities = []byte("capability_requests")
	bucketOutputs      = []byte("task_outputs")
	bucketMessages     = []byte("task_messages")
	bucketDeployments  = []byte("deployments")
	bucketLLMConfig    = []byte("llm_provider_config")
	bucketAudit        = []byte("audit_logs")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "openclaw.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketTasks,
			bucketPolicies,
			bucketCapabilities,
			bucketOutputs,
			bucketMessages,
			bucketDeployments,
			bucketLLMConfig,
			bucketAudit,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// seqKey turns an integer id into a sortable bucket key
func seqKey(id int) []byte {
	return []byte(fmt.Sprintf("%010d", id))
}

// Task operations
func (s *BoltStore) CreateTask(task *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return b.Put([]byte(task.ID), data)
	})
}

func (s *BoltStore) GetTask(id string) (*types.Task, error) {
	var task types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("task %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &task)
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *BoltStore) ListTasks() ([]*types.Task, error) {
	var tasks []*types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		return b.ForEach(func(k, v []byte) error {
			var task types.Task
			if err := json.Unmarshal(v, &task); err != nil {
				return err
			}
			tasks = append(tasks, &task)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (s *BoltStore) UpdateTask(task *types.Task) error {
	return s.CreateTask(task) // Same as create (upsert)
}

func (s *BoltStore) DeleteTask(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTasks)
		return b.Delete([]byte(id))
	})
}

// Policy operations
func (s *BoltStore) CreatePolicy(policy *types.Policy) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPolicies)
		if policy.ID == 0 {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			policy.ID = int(seq)
		}
		data, err := json.Marshal(policy)
		if err != nil {
			return err
		}
		return b.Put(seqKey(policy.ID), data)
	})
}

func (s *BoltStore) GetPolicy(id int) (*types.Policy, error) {
	var policy types.Policy
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPolicies)
		data := b.Get(seqKey(id))
		if data == nil {
			return fmt.Errorf("policy %d: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &policy)
	})
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

func (s *BoltStore) ListPoliciesByTask(taskID string) ([]*types.Policy, error) {
	var policies []*types.Policy
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPolicies)
		return b.ForEach(func(k, v []byte) error {
			var policy types.Policy
			if err := json.Unmarshal(v, &policy); err != nil {
				return err
			}
			if policy.TaskID == taskID {
				policies = append(policies, &policy)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(policies, func(i, j int) bool {
		return policies[i].Version < policies[j].Version
	})
	return policies, nil
}

// Capability request operations
func (s *BoltStore) CreateCapabilityRequest(req *types.CapabilityRequest) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCapabilities)
		if req.ID == 0 {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			req.ID = int(seq)
		}
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		return b.Put(seqKey(req.ID), data)
	})
}

func (s *BoltStore) GetCapabilityRequest(id int) (*types.CapabilityRequest, error) {
	var req types.CapabilityRequest
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCapabilities)
		data := b.Get(seqKey(id))
		if data == nil {
			return fmt.Errorf("capability request %d: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &req)
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// ListCapabilityRequests filters by task and status; empty values match all
func (s *BoltStore) ListCapabilityRequests(taskID string, status types.RequestStatus) ([]*types.CapabilityRequest, error) {
	var requests []*types.CapabilityRequest
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCapabilities)
		return b.ForEach(func(k, v []byte) error {
			var req types.CapabilityRequest
			if err := json.Unmarshal(v, &req); err != nil {
				return err
			}
			if taskID != "" && req.TaskID != taskID {
				return nil
			}
			if status != "" && req.Status != status {
				return nil
			}
			requests = append(requests, &req)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].RequestedAt.After(requests[j].RequestedAt)
	})
	return requests, nil
}

func (s *BoltStore) UpdateCapabilityRequest(req *types.CapabilityRequest) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCapabilities)
		data, err := json.Marshal(req)
		if err != nil {
			return err
		}
		return b.Put(seqKey(req.ID), data)
	})
}

// Task output operations
func (s *BoltStore) CreateTaskOutput(output *types.TaskOutput) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOutputs)
		if output.ID == 0 {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			output.ID = int(seq)
		}
		data, err := json.Marshal(output)
		if err != nil {
			return err
		}
		return b.Put(seqKey(output.ID), data)
	})
}

func (s *BoltStore) ListOutputsByTask(taskID string) ([]*types.TaskOutput, error) {
	var outputs []*types.TaskOutput
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOutputs)
		return b.ForEach(func(k, v []byte) error {
			var output types.TaskOutput
			if err := json.Unmarshal(v, &output); err != nil {
				return err
			}
			if output.TaskID == taskID {
				outputs = append(outputs, &output)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(outputs, func(i, j int) bool {
		return outputs[i].Iteration < outputs[j].Iteration
	})
	return outputs, nil
}

// LastIteration returns the highest recorded iteration for a task, 0 if none.
// Continuations start numbering from this value plus one.
func (s *BoltStore) LastIteration(taskID string) (int, error) {
	outputs, err := s.ListOutputsByTask(taskID)
	if err != nil {
		return 0, err
	}
	last := 0
	for _, output := range outputs {
		if output.Iteration > last {
			last = output.Iteration
		}
	}
	return last, nil
}

// Message operations
func (s *BoltStore) CreateTaskMessage(msg *types.TaskMessage) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		if msg.ID == 0 {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			msg.ID = int(seq)
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return b.Put(seqKey(msg.ID), data)
	})
}

func (s *BoltStore) ListMessagesByTask(taskID string) ([]*types.TaskMessage, error) {
	var messages []*types.TaskMessage
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		return b.ForEach(func(k, v []byte) error {
			var msg types.TaskMessage
			if err := json.Unmarshal(v, &msg); err != nil {
				return err
			}
			if msg.TaskID == taskID {
				messages = append(messages, &msg)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].ID < messages[j].ID
	})
	return messages, nil
}

// Deployment operations
func (s *BoltStore) CreateDeployment(deployment *types.Deployment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		data, err := json.Marshal(deployment)
		if err != nil {
			return err
		}
		return b.Put([]byte(deployment.ID), data)
	})
}

func (s *BoltStore) GetDeployment(id string) (*types.Deployment, error) {
	var deployment types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("deployment %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &deployment)
	})
	if err != nil {
		return nil, err
	}
	return &deployment, nil
}

// ListDeployments filters by task and status; empty values match all
func (s *BoltStore) ListDeployments(taskID string, status types.DeploymentStatus) ([]*types.Deployment, error) {
	var deployments []*types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		return b.ForEach(func(k, v []byte) error {
			var deployment types.Deployment
			if err := json.Unmarshal(v, &deployment); err != nil {
				return err
			}
			if taskID != "" && deployment.TaskID != taskID {
				return nil
			}
			if status != "" && deployment.Status != status {
				return nil
			}
			deployments = append(deployments, &deployment)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(deployments, func(i, j int) bool {
		return deployments[i].CreatedAt.After(deployments[j].CreatedAt)
	})
	return deployments, nil
}

func (s *BoltStore) UpdateDeployment(deployment *types.Deployment) error {
	return s.CreateDeployment(deployment)
}

// LLM provider configuration operations
func (s *BoltStore) SetLLMConfig(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLLMConfig)
		return b.Put([]byte(key), []byte(value))
	})
}

func (s *BoltStore) GetLLMConfig(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLLMConfig)
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("config key %s: %w", key, types.ErrNotFound)
		}
		value = string(data)
		return nil
	})
	return value, err
}

func (s *BoltStore) ListLLMConfig() (map[string]string, error) {
	config := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLLMConfig)
		return b.ForEach(func(k, v []byte) error {
			config[string(k)] = string(v)
			return nil
		})
	})
	return config, err
}

// Audit operations
func (s *BoltStore) AppendAudit(entry *types.AuditEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAudit)
		if entry.ID == 0 {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			entry.ID = int(seq)
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put(seqKey(entry.ID), data)
	})
}

func (s *BoltStore) ListAuditByTask(taskID string) ([]*types.AuditEntry, error) {
	var entries []*types.AuditEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAudit)
		return b.ForEach(func(k, v []byte) error {
			var entry types.AuditEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			if entry.TaskID == taskID {
				entries = append(entries, &entry)
			}
			return nil
		})
	})
	return entries, err
}
