// Package ospf2 implements the OSPFv2 wire protocol as described in RFC
// 2328, appendix A: packet headers, Hello, Database Description,
// Link State Request, Link State Update and Link State Acknowledgment
// messages, and the five LSA body types used by the core engine in
// internal/.
package ospf2
