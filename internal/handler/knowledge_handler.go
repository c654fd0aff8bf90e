// Package handler 提供 HTTP 请求处理器
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rainbowchenx/ai-agent/pkg/response"
)

// KnowledgeHandler 知识库请求处理器
// 知识库的存储和检索还未接入，接口先占位
// TODO: 接入向量库后实现 Upload/List/Delete
type KnowledgeHandler struct{}

// NewKnowledgeHandler 创建 KnowledgeHandler 实例
func NewKnowledgeHandler() *KnowledgeHandler {
	return &KnowledgeHandler{}
}

// notImplemented 统一的占位响应
func (h *KnowledgeHandler) notImplemented(c *gin.Context) {
	response.ErrorWithCode(c, http.StatusNotImplemented, response.CodeInternalError, "knowledge base is not available yet")
}

// Upload 上传知识库文档
// @Summary 上传文档
// @Tags 知识库
// @Security Bearer
// @Router /api/v1/knowledge/upload [post]
func (h *KnowledgeHandler) Upload(c *gin.Context) {
	h.notImplemented(c)
}

// List 列出知识库文档
// @Summary 文档列表
// @Tags 知识库
// @Security Bearer
// @Router /api/v1/knowledge/list [get]
func (h *KnowledgeHandler) List(c *gin.Context) {
	h.notImplemented(c)
}

// Delete 删除知识库文档
// @Summary 删除文档
// @Tags 知识库
// @Security Bearer
// @Router /api/v1/knowledge/{id} [delete]
func (h *KnowledgeHandler) Delete(c *gin.Context) {
	h.notImplemented(c)
}
