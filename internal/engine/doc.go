// Package engine содержит описание pipeline как графа stages.
//
// Включает:
//   - parser.go   — парсинг PipelineSpec из YAML/JSON и валидация
//   - pipeline.go — построение упорядоченной цепочки stages
//
// Engine отвечает за понимание структуры pipeline: какой stage за каким
// следует и с какими retry/timeout он выполняется. Передача данных между
// stages — явная: выходная ссылка stage N становится входом stage N+1.
package engine
