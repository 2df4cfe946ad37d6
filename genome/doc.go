// Package genome 定义基因组与种群。
//
// Genome 的适应度只能整体替换；Population 在过滤或移除后强制最小规模不变量。
package genome
