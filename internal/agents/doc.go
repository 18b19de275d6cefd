// Package agents 提供具体的智能体实现。
//
// 任务智能体负责目标分解与计划执行，监控智能体负责指标基线与异常检测，
// 系统智能体把系统运维类请求转交给工具注册中心。所有智能体都实现
// agent.Handler，由 agent.Core 统一管理生命周期。
package agents
