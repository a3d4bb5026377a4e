package engine

import (
	"time"

	"github.com/shaiso/Stockpipe/internal/domain"
)

// Значения по умолчанию для sensor'а (poke_interval=30, timeout=300).
const (
	DefaultSensorInterval = 30 * time.Second
	DefaultSensorTimeout  = 300 * time.Second
)

// Node — узел цепочки pipeline.
type Node struct {
	// Def — определение stage с применёнными defaults.
	Def domain.StageDef

	// Upstream — предыдущий узел. Nil для первого stage (его вход — контекст sensor'а).
	Upstream *Node

	// Downstream — следующий узел. Nil для последнего stage.
	Downstream *Node
}

// Name возвращает имя stage.
func (n *Node) Name() string {
	return n.Def.Name
}

// IsFirst возвращает true для первого stage цепочки.
func (n *Node) IsFirst() bool {
	return n.Upstream == nil
}

// Pipeline — упорядоченная ациклическая цепочка stages.
//
// Выход stage N передаётся на вход stage N+1 без изменений.
type Pipeline struct {
	// Name — имя pipeline.
	Name string

	// Schedule — расписание pipeline.
	Schedule domain.Schedule

	// SensorInterval — интервал проверок sensor'а.
	SensorInterval time.Duration

	// SensorTimeout — бюджет ожидания sensor'а.
	SensorTimeout time.Duration

	// Nodes — узлы в порядке выполнения.
	Nodes []*Node

	index map[string]*Node
}

// BuildPipeline строит Pipeline из валидной PipelineSpec.
//
// Спецификация валидируется (без проверки типов), defaults
// применяются к каждому stage, ordinal проставляются по порядку там, где не заданы.
func BuildPipeline(spec *domain.PipelineSpec) (*Pipeline, error) {
	if err := Validate(spec, nil); err != nil {
		return nil, err
	}

	p := &Pipeline{
		Name:           spec.Name,
		Schedule:       spec.Schedule,
		SensorInterval: secondsOr(spec.Sensor.IntervalSec, DefaultSensorInterval),
		SensorTimeout:  secondsOr(spec.Sensor.TimeoutSec, DefaultSensorTimeout),
		Nodes:          make([]*Node, 0, len(spec.Stages)),
		index:          make(map[string]*Node, len(spec.Stages)),
	}

	var prev *Node
	ordinal := 0
	for _, def := range spec.Stages {
		def = applyDefaults(def, spec.Defaults)

		// Ordinal: явный или следующий по порядку
		if def.Ordinal == 0 {
			def.Ordinal = ordinal + 1
		}
		ordinal = def.Ordinal

		node := &Node{Def: def, Upstream: prev}
		if prev != nil {
			prev.Downstream = node
		}

		p.Nodes = append(p.Nodes, node)
		p.index[def.Name] = node
		prev = node
	}

	return p, nil
}

// applyDefaults применяет defaults к stage.
func applyDefaults(def domain.StageDef, defaults *domain.StageDefaults) domain.StageDef {
	if def.Type == "" {
		def.Type = def.Name
	}
	if defaults == nil {
		return def
	}
	if def.Retry == nil && defaults.Retry != nil {
		retry := *defaults.Retry
		def.Retry = &retry
	}
	if def.TimeoutSec == 0 {
		def.TimeoutSec = defaults.TimeoutSec
	}
	return def
}

func secondsOr(sec int, def time.Duration) time.Duration {
	if sec <= 0 {
		return def
	}
	return time.Duration(sec) * time.Second
}

// Node возвращает узел по имени stage.
func (p *Pipeline) Node(name string) *Node {
	return p.index[name]
}

// First возвращает первый узел цепочки.
func (p *Pipeline) First() *Node {
	if len(p.Nodes) == 0 {
		return nil
	}
	return p.Nodes[0]
}

// Size возвращает количество stages.
func (p *Pipeline) Size() int {
	return len(p.Nodes)
}

// StageTypes возвращает множество типов stages pipeline.
func (p *Pipeline) StageTypes() []string {
	types := make([]string, 0, len(p.Nodes))
	seen := make(map[string]bool, len(p.Nodes))
	for _, n := range p.Nodes {
		if !seen[n.Def.Type] {
			seen[n.Def.Type] = true
			types = append(types, n.Def.Type)
		}
	}
	return types
}

// Remaining возвращает узлы после указанного (не включая его).
func (p *Pipeline) Remaining(after *Node) []*Node {
	nodes := make([]*Node, 0)
	for n := after.Downstream; n != nil; n = n.Downstream {
		nodes = append(nodes, n)
	}
	return nodes
}
